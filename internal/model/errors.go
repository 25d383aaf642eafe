package model

import (
	"errors"
	"fmt"
)

var (
	ErrQueueFull       = errors.New("print queue is full")
	ErrQueueClosed     = errors.New("print queue is closed")
	ErrNotConnected    = errors.New("not connected to server")
	ErrAuthRejected    = errors.New("server rejected agent credentials")
	ErrPrinterNotReady = errors.New("printer not initialized")
	ErrTimeout         = errors.New("operation timed out")
	ErrUnknownTemplate = errors.New("unknown template")
)

// ConnectionError covers handshake timeouts, auth rejection and transport
// drops. The supervisor recovers from it by reconnecting.
type ConnectionError struct {
	Op  string
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// PrinterError covers initialization, commit and timeout failures.
type PrinterError struct {
	Op        string
	Interface string
	Err       error
}

func (e *PrinterError) Error() string {
	if e.Interface == "" {
		return fmt.Sprintf("printer %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("printer %s (%s): %v", e.Op, e.Interface, e.Err)
}

func (e *PrinterError) Unwrap() error { return e.Err }

// TemplateError is returned by strict template lookups. Rendering never
// surfaces it; unknown names fall back to the default template.
type TemplateError struct {
	Name string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %q not found", e.Name)
}

func (e *TemplateError) Unwrap() error { return ErrUnknownTemplate }

// ValidationError reports a malformed job payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid print request: %s %s", e.Field, e.Reason)
}

// FileSystemError covers local persistence failures.
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error { return e.Err }
