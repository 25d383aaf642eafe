package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"image"
	"image/png"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/Riboost-Studio/print-agent/internal/model"
)

// ticketHTML lays a rendered ticket out for the headless browser. Header and
// footer are centered, body lines are left aligned, matching the text mode.
var ticketHTML = template.Must(template.New("ticket").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><style>
body { margin: 0; padding: 8px; width: {{.Width}}px; font-family: "DejaVu Sans Mono", monospace; font-size: 22px; color: #000; background: #fff; }
p { margin: 0; white-space: pre-wrap; word-break: break-word; min-height: 1.2em; }
.c { text-align: center; }
.b { margin: 12px 0; }
</style></head><body>
<div>{{range .Header}}<p class="c">{{.}}</p>{{end}}</div>
<div class="b">{{range .Body}}<p>{{.}}</p>{{end}}</div>
<div>{{range .Footer}}<p class="c">{{.}}</p>{{end}}</div>
</body></html>`))

// rasterizer renders tickets to ESC/POS bitmaps through headless Chrome.
type rasterizer struct {
	chromePath string
	width      int
}

func newRasterizer(chromePath string, width int) *rasterizer {
	if width <= 0 {
		width = 576
	}
	// ESC/POS width must be divisible by 8
	width -= width % 8
	return &rasterizer{chromePath: chromePath, width: width}
}

// Render returns the GS v 0 command for the ticket.
func (r *rasterizer) Render(ctx context.Context, t model.RenderedTicket) ([]byte, error) {
	html, err := r.html(t)
	if err != nil {
		return nil, err
	}
	pngBytes, err := r.screenshot(ctx, html)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode PNG: %w", err)
	}
	return convertImageToESCPOS(resizeToWidth(img, r.width))
}

func (r *rasterizer) html(t model.RenderedTicket) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Width  int
		Header []string
		Body   []string
		Footer []string
	}{r.width - 16, t.Header, t.Body, t.Footer}
	if err := ticketHTML.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

func (r *rasterizer) screenshot(ctx context.Context, html string) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
	)
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	cdpCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var pngBytes []byte
	err := chromedp.Run(cdpCtx,
		chromedp.EmulateViewport(int64(r.width), 200),
		// Load HTML directly using data URL
		chromedp.Navigate("data:text/html,"+urlEncode(html)),
		chromedp.Sleep(300*time.Millisecond),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, err := page.CaptureScreenshot().
				WithCaptureBeyondViewport(true). // capture full height
				Do(ctx)
			if err != nil {
				return err
			}
			pngBytes = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed generating image: %w", err)
	}
	return pngBytes, nil
}

// Helper for encoding HTML into a data URL
func urlEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// rasterBandRows is the most rows sent in one GS v 0 command.
const rasterBandRows = 1024

func convertImageToESCPOS(img image.Image) ([]byte, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	// ESC/POS width must be divisible by 8
	if width%8 != 0 {
		width = width - (width % 8)
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("empty image %dx%d", bounds.Dx(), bounds.Dy())
	}

	rowBytes := width / 8
	raster := make([]byte, rowBytes*height)

	// Convert to 1-bit
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			gray := (r + g + b) / 3
			if gray < 0x8000 { // threshold
				raster[y*rowBytes+x/8] |= 1 << (7 - (x % 8))
			}
		}
	}

	// GS v 0 carries a 16-bit row count, so tall images go out as bands
	out := make([]byte, 0, len(raster)+8*(height/rasterBandRows+1))
	for top := 0; top < height; top += rasterBandRows {
		rows := min(rasterBandRows, height-top)
		out = append(out,
			0x1D, 0x76, 0x30, 0x00,
			byte(rowBytes), byte(rowBytes>>8),
			byte(rows), byte(rows>>8),
		)
		out = append(out, raster[top*rowBytes:(top+rows)*rowBytes]...)
	}
	return out, nil
}

func resizeToWidth(src image.Image, targetWidth int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w == targetWidth || w == 0 {
		return src
	}

	scale := float64(targetWidth) / float64(w)
	newHeight := int(float64(h) * scale)

	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, newHeight))
	for y := 0; y < newHeight; y++ {
		for x := 0; x < targetWidth; x++ {
			sx := bounds.Min.X + int(float64(x)/scale)
			sy := bounds.Min.Y + int(float64(y)/scale)
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}
