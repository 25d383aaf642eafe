package services

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/Riboost-Studio/print-agent/internal/model"
)

// ESC/POS command bytes.
var (
	cmdInit        = []byte{0x1B, 0x40}             // ESC @
	cmdAlignLeft   = []byte{0x1B, 0x61, 0x00}       // ESC a 0
	cmdAlignCenter = []byte{0x1B, 0x61, 0x01}       // ESC a 1
	cmdFeed3       = []byte{0x1B, 0x64, 0x03}       // ESC d 3
	cmdCutEpson    = []byte{0x1D, 0x56, 0x41, 0x00} // GS V A 0 - feed and partial cut
)

// codePages maps PRINTER_ENCODING names to a charmap and the ESC t n page
// number used by Epson-compatible printers.
var codePages = map[string]struct {
	charmap *charmap.Charmap
	page    byte
}{
	"PC437":   {charmap.CodePage437, 0},
	"PC850":   {charmap.CodePage850, 2},
	"PC858":   {charmap.CodePage858, 19},
	"PC852":   {charmap.CodePage852, 18},
	"WPC1252": {charmap.Windows1252, 16},
	"CP1252":  {charmap.Windows1252, 16},
}

type alignment int

const (
	alignLeft alignment = iota
	alignCenter
)

// escposBuilder accumulates a printer command stream.
type escposBuilder struct {
	buf     bytes.Buffer
	enc     *encoding.Encoder // nil means UTF-8 passthrough
	page    byte
	typ     model.PrinterType
	width   int
	aligned bool
	align   alignment
}

func newESCPOSBuilder(typ model.PrinterType, encodingName string, width int) (*escposBuilder, error) {
	b := &escposBuilder{typ: typ, width: width}
	if b.width <= 0 {
		b.width = 48
	}

	name := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(encodingName), "-", ""))
	switch name {
	case "", "UTF8":
	default:
		cp, ok := codePages[name]
		if !ok {
			return nil, fmt.Errorf("unsupported printer encoding %q", encodingName)
		}
		b.enc = encoding.ReplaceUnsupported(cp.charmap.NewEncoder())
		b.page = cp.page
	}
	return b, nil
}

// Init resets the printer and selects the code page.
func (b *escposBuilder) Init() *escposBuilder {
	b.buf.Write(cmdInit)
	if b.enc != nil {
		b.buf.Write([]byte{0x1B, 0x74, b.page}) // ESC t n
	}
	b.aligned = false
	return b
}

func (b *escposBuilder) Align(a alignment) *escposBuilder {
	if b.aligned && b.align == a {
		return b
	}
	switch a {
	case alignCenter:
		b.buf.Write(cmdAlignCenter)
	default:
		b.buf.Write(cmdAlignLeft)
	}
	b.align, b.aligned = a, true
	return b
}

func (b *escposBuilder) Println(s string) *escposBuilder {
	b.buf.Write(b.encode(s))
	b.buf.WriteByte('\n')
	return b
}

func (b *escposBuilder) DrawLine() *escposBuilder {
	return b.Println(strings.Repeat("-", b.width))
}

// Cut feeds the paper past the tear bar and cuts it.
func (b *escposBuilder) Cut() *escposBuilder {
	b.buf.Write(cmdFeed3)
	if b.typ != model.PrinterStar {
		b.buf.Write(cmdCutEpson)
	}
	return b
}

// Raster appends a GS v 0 bitmap as produced by convertImageToESCPOS.
func (b *escposBuilder) Raster(data []byte) *escposBuilder {
	b.buf.Write(data)
	return b
}

func (b *escposBuilder) Bytes() []byte {
	return b.buf.Bytes()
}

func (b *escposBuilder) encode(s string) []byte {
	if b.enc == nil {
		return []byte(s)
	}
	out, err := b.enc.Bytes([]byte(s))
	if err != nil {
		// ReplaceUnsupported only fails on invalid UTF-8
		out, _ = b.enc.Bytes([]byte(strings.ToValidUTF8(s, "?")))
	}
	return out
}
