package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Riboost-Studio/print-agent/internal/model"
	"github.com/Riboost-Studio/print-agent/internal/utils"
)

// PrinterBackend commits rendered tickets somewhere: a thermal printer or a
// dry-run file. Implementations are driven by a single caller, the job
// orchestrator, and need not be safe for concurrent Commit calls.
type PrinterBackend interface {
	Name() string
	Initialize(ctx context.Context) error
	Commit(ctx context.Context, t model.RenderedTicket) error
	Close(ctx context.Context)
	Status() model.PrinterStatus
}

// --- Ticket Layout ---

type ticketLine struct {
	text  string
	align alignment
}

// layoutTicket is the exact line sequence both backends emit: header
// centered, a blank line, body left aligned, a blank line, footer centered.
func layoutTicket(t model.RenderedTicket) []ticketLine {
	lines := make([]ticketLine, 0, len(t.Header)+len(t.Body)+len(t.Footer)+2)
	for _, l := range t.Header {
		lines = append(lines, ticketLine{l, alignCenter})
	}
	lines = append(lines, ticketLine{"", alignLeft})
	for _, l := range t.Body {
		lines = append(lines, ticketLine{l, alignLeft})
	}
	lines = append(lines, ticketLine{"", alignLeft})
	for _, l := range t.Footer {
		lines = append(lines, ticketLine{l, alignCenter})
	}
	return lines
}

// TicketText is the plain-text form of a ticket as written in dry-run mode.
func TicketText(t model.RenderedTicket) string {
	var sb strings.Builder
	for _, l := range layoutTicket(t) {
		sb.WriteString(l.text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// --- Thermal Printer ---

// ESCPOSPrinter drives an ESC/POS printer reachable over TCP (tcp://host:port,
// usually port 9100) or through a device path such as /dev/usb/lp0 or COM3.
type ESCPOSPrinter struct {
	cfg    model.PrinterConfig
	raster *rasterizer
	logger zerolog.Logger
	now    func() time.Time

	mu     sync.Mutex
	ready  bool
	status model.PrinterStatus
}

// NewESCPOSPrinter validates the printer configuration. chromePath is only
// used in raster mode; empty lets chromedp find a browser.
func NewESCPOSPrinter(cfg model.PrinterConfig, chromePath string, logger zerolog.Logger) (*ESCPOSPrinter, error) {
	if strings.TrimSpace(cfg.Interface) == "" {
		return nil, &model.PrinterError{Op: "configure", Err: errors.New("no printer interface configured")}
	}
	if _, err := newESCPOSBuilder(cfg.Type, cfg.Encoding, cfg.Width); err != nil {
		return nil, &model.PrinterError{Op: "configure", Interface: cfg.Interface, Err: err}
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = 5 * time.Second
	}

	p := &ESCPOSPrinter{
		cfg:    cfg,
		logger: logger.With().Str("component", "printer").Str("interface", cfg.Interface).Logger(),
		now:    time.Now,
		status: model.PrinterDisconnected,
	}
	if cfg.Mode == model.PrinterModeRaster {
		p.raster = newRasterizer(chromePath, cfg.PixelWidth)
	}
	return p, nil
}

func (p *ESCPOSPrinter) Name() string {
	return fmt.Sprintf("%s %s", p.cfg.Type, p.cfg.Interface)
}

func (p *ESCPOSPrinter) Status() model.PrinterStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *ESCPOSPrinter) setState(ready bool, status model.PrinterStatus) {
	p.mu.Lock()
	p.ready, p.status = ready, status
	p.mu.Unlock()
}

// Initialize checks the interface and prints a short diagnostic ticket.
func (p *ESCPOSPrinter) Initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.InitTimeout)
	defer cancel()

	p.logger.Info().Str("type", string(p.cfg.Type)).Str("mode", string(p.cfg.Mode)).Msg("initializing printer")

	if addr, ok := tcpAddress(p.cfg.Interface); ok {
		if err := utils.Probe(ctx, addr, p.cfg.InitTimeout); err != nil {
			p.setState(false, model.PrinterFailing)
			return p.wrap(ctx, "initialize", fmt.Errorf("printer unreachable: %w", err))
		}
	}

	b, _ := newESCPOSBuilder(p.cfg.Type, p.cfg.Encoding, p.cfg.Width)
	b.Init().
		Align(alignCenter).
		Println("Test de Conexion").
		Println(p.now().Format("02/01/2006 15:04:05")).
		DrawLine().
		Cut()

	if err := p.send(ctx, b.Bytes()); err != nil {
		p.setState(false, model.PrinterFailing)
		return p.wrap(ctx, "initialize", err)
	}

	p.setState(true, model.PrinterConnected)
	p.logger.Info().Msg("printer initialized")
	return nil
}

// Commit prints one ticket and cuts the paper.
func (p *ESCPOSPrinter) Commit(ctx context.Context, t model.RenderedTicket) error {
	p.mu.Lock()
	ready := p.ready
	p.mu.Unlock()
	if !ready {
		return &model.PrinterError{Op: "commit", Interface: p.cfg.Interface, Err: model.ErrPrinterNotReady}
	}

	data, err := p.encode(ctx, t)
	if err != nil {
		p.setState(true, model.PrinterFailing)
		return p.wrap(ctx, "render", err)
	}

	p.logger.Debug().Str("job_id", t.JobID).Int("bytes", len(data)).Msg("sending ticket")
	if err := p.send(ctx, data); err != nil {
		p.setState(true, model.PrinterFailing)
		return p.wrap(ctx, "commit", err)
	}

	p.setState(true, model.PrinterConnected)
	return nil
}

func (p *ESCPOSPrinter) encode(ctx context.Context, t model.RenderedTicket) ([]byte, error) {
	b, err := newESCPOSBuilder(p.cfg.Type, p.cfg.Encoding, p.cfg.Width)
	if err != nil {
		return nil, err
	}
	b.Init()

	if p.raster != nil {
		img, err := p.raster.Render(ctx, t)
		if err != nil {
			return nil, err
		}
		return b.Raster(img).Cut().Bytes(), nil
	}

	for _, l := range layoutTicket(t) {
		b.Align(l.align).Println(l.text)
	}
	return b.Cut().Bytes(), nil
}

// Close feeds a blank line and cuts before releasing the printer. Errors are
// logged only.
func (p *ESCPOSPrinter) Close(ctx context.Context) {
	p.mu.Lock()
	ready := p.ready
	p.mu.Unlock()
	if !ready {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.InitTimeout)
	defer cancel()

	b, _ := newESCPOSBuilder(p.cfg.Type, p.cfg.Encoding, p.cfg.Width)
	b.Println("").Cut()
	if err := p.send(ctx, b.Bytes()); err != nil {
		p.logger.Error().Err(err).Msg("error closing printer")
	} else {
		p.logger.Info().Msg("printer connection closed")
	}
	p.setState(false, model.PrinterDisconnected)
}

func (p *ESCPOSPrinter) wrap(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", model.ErrTimeout, err)
	}
	return &model.PrinterError{Op: op, Interface: p.cfg.Interface, Err: err}
}

// send writes one command stream to the interface within ctx.
func (p *ESCPOSPrinter) send(ctx context.Context, data []byte) error {
	if addr, ok := tcpAddress(p.cfg.Interface); ok {
		return sendTCP(ctx, addr, data)
	}
	return sendDevice(ctx, p.cfg.Interface, data)
}

func tcpAddress(iface string) (string, bool) {
	if rest, ok := strings.CutPrefix(iface, "tcp://"); ok {
		if _, _, err := net.SplitHostPort(rest); err != nil {
			return net.JoinHostPort(rest, "9100"), true
		}
		return rest, true
	}
	return "", false
}

func sendTCP(ctx context.Context, addr string, data []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

func sendDevice(ctx context.Context, path string, data []byte) error {
	done := make(chan error, 1)
	go func() {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
		if err != nil {
			done <- fmt.Errorf("open device: %w", err)
			return
		}
		_, werr := f.Write(data)
		cerr := f.Close()
		if werr != nil {
			done <- fmt.Errorf("write failed: %w", werr)
			return
		}
		done <- cerr
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- Dry Run ---

// PrintoutWriter persists dry-run tickets.
type PrintoutWriter interface {
	SavePrintout(jobID, content string) (string, error)
}

// DryRunPrinter writes each ticket to a text file instead of paper.
type DryRunPrinter struct {
	out    PrintoutWriter
	logger zerolog.Logger
}

func NewDryRunPrinter(out PrintoutWriter, logger zerolog.Logger) *DryRunPrinter {
	return &DryRunPrinter{out: out, logger: logger.With().Str("component", "printer").Str("mode", "dry-run").Logger()}
}

func (d *DryRunPrinter) Name() string { return "dry-run" }
func (d *DryRunPrinter) Status() model.PrinterStatus { return model.PrinterDryRun }
func (d *DryRunPrinter) Initialize(context.Context) error { return nil }
func (d *DryRunPrinter) Close(context.Context) {}

func (d *DryRunPrinter) Commit(ctx context.Context, t model.RenderedTicket) error {
	if err := ctx.Err(); err != nil {
		return &model.PrinterError{Op: "commit", Interface: "dry-run", Err: err}
	}
	content := TicketText(t)
	path, err := d.out.SavePrintout(t.JobID, content)
	if err != nil {
		return err
	}
	d.logger.Info().
		Str("job_id", t.JobID).
		Str("file", path).
		Int("lines", strings.Count(content, "\n")).
		Msg("ticket saved to file")
	return nil
}
