package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fluxo/internal/aggregate"
	"fluxo/internal/amqp"
	"fluxo/internal/core"
	"fluxo/internal/sheets"
	"fluxo/internal/store"
)

// SyncWorker mirrors the ledger to a spreadsheet. Every change re-exports
// whole years instead of patching rows, so the sheet always equals a fresh
// read of the store.
type SyncWorker struct {
	store    store.TransactionRepository
	exporter sheets.Exporter
	now      func() time.Time
}

func NewSyncWorker(repo store.TransactionRepository, exporter sheets.Exporter) *SyncWorker {
	return &SyncWorker{
		store:    repo,
		exporter: exporter,
		now:      time.Now,
	}
}

// HandleChange processes a single change message from AMQP.
func (w *SyncWorker) HandleChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	slog.InfoContext(ctx, "Processing change message",
		"resource", msg.Resource,
		"action", msg.Action,
		"id", msg.ID)

	for _, year := range w.yearsFor(msg) {
		if err := w.ExportYear(ctx, year); err != nil {
			return err
		}
	}
	return nil
}

// yearsFor lists the years a change touches. Category and payment method
// names are denormalised into the sheet, so those changes refresh the
// current year.
func (w *SyncWorker) yearsFor(msg *amqp.ChangeMessage) []int {
	if msg.Resource != amqp.ResourceTransactions || msg.Year == 0 {
		return []int{w.now().Year()}
	}
	years := []int{msg.Year}
	if msg.PreviousYear != 0 && msg.PreviousYear != msg.Year {
		years = append(years, msg.PreviousYear)
	}
	return years
}

// ExportYear rewrites the ledger and summary sheets of year from the store.
func (w *SyncWorker) ExportYear(ctx context.Context, year int) error {
	rows, err := w.store.ListTransactions(ctx, store.TransactionQuery{Range: core.YearRange(year)})
	if err != nil {
		return fmt.Errorf("list transactions for %d: %w", year, err)
	}

	if err := w.exporter.ExportYear(ctx, year, rows); err != nil {
		return fmt.Errorf("export ledger %d: %w", year, err)
	}

	points := aggregate.MonthlySeries(core.Plain(rows), core.NewDate(year, 1, 1).Time)
	if err := w.exporter.ExportSummary(ctx, year, points); err != nil {
		return fmt.Errorf("export summary %d: %w", year, err)
	}

	slog.InfoContext(ctx, "Successfully mirrored year",
		"year", year,
		"rows", len(rows))
	return nil
}

// StartupSync re-exports the current year so the sheet catches up with
// writes made while the worker was down.
func (w *SyncWorker) StartupSync(ctx context.Context) error {
	year := w.now().Year()
	if err := w.ExportYear(ctx, year); err != nil {
		return fmt.Errorf("startup sync: %w", err)
	}
	return nil
}
