package sheets

import (
	"context"

	"fluxo/internal/aggregate"
	"fluxo/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerExporter replaces the mirrored ledger of one year.
	LedgerExporter interface {
		ExportYear(ctx context.Context, year int, rows []core.TransactionDetails) error
	}

	// SummaryExporter writes the monthly income/expense series of one year.
	SummaryExporter interface {
		ExportSummary(ctx context.Context, year int, points []aggregate.MonthPoint) error
	}

	Exporter interface {
		LedgerExporter
		SummaryExporter
	}
)
