package model

import (
	"strings"
	"time"
)

// --- Printer Configuration ---

type PrinterType string

const (
	PrinterEpson   PrinterType = "EPSON"
	PrinterStar    PrinterType = "STAR"
	PrinterCitizen PrinterType = "CITIZEN"
)

// ParsePrinterType maps a configured type name to a known type. Unknown
// names fall back to EPSON, which most thermal printers emulate.
func ParsePrinterType(s string) PrinterType {
	switch PrinterType(strings.ToUpper(strings.TrimSpace(s))) {
	case PrinterStar:
		return PrinterStar
	case PrinterCitizen:
		return PrinterCitizen
	default:
		return PrinterEpson
	}
}

// PrinterMode selects how tickets are encoded for the printer.
type PrinterMode string

const (
	// PrinterModeText sends ESC/POS text commands.
	PrinterModeText PrinterMode = "text"
	// PrinterModeRaster renders the ticket through headless Chrome and sends
	// it as a GS v 0 bitmap.
	PrinterModeRaster PrinterMode = "raster"
)

type PrinterStatus string

const (
	PrinterDisconnected PrinterStatus = "disconnected"
	PrinterConnected    PrinterStatus = "connected"
	PrinterDryRun       PrinterStatus = "dry-run"
	PrinterFailing      PrinterStatus = "error"
)

type PrinterConfig struct {
	Type        PrinterType   `json:"type"`
	Interface   string        `json:"interface"` // tcp://host:port or a device path
	Encoding    string        `json:"encoding"`
	Width       int           `json:"width"` // characters per line
	Mode        PrinterMode   `json:"mode"`
	InitTimeout time.Duration `json:"initTimeout"`
	// PixelWidth is the dot width used in raster mode.
	PixelWidth int `json:"pixelWidth"`
}
