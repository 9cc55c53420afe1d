package backend

import (
	"context"

	"cashbook/internal/sheets"
)

// Exporter is where settlement batches end up.
type Exporter interface {
	sheets.SettlementWriter
	sheets.SettlementLister
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result contains the exporter instance and optional cleanup function
type Result struct {
	Exporter Exporter
	Cleanup  CleanupFunc
}

// Factory creates exporters based on configuration
type Factory interface {
	CreateExporter(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for exporter creation
type Config struct {
	Type Type

	// Google Sheets specific
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string
}

// Type names an export backend.
type Type string

const (
	MemoryBackend Type = "memory"
	SheetsBackend Type = "sheets"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid
func (t Type) IsValid() bool {
	switch t {
	case MemoryBackend, SheetsBackend:
		return true
	default:
		return false
	}
}
