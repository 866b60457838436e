package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"fluxo/internal/aggregate"
	"fluxo/internal/core"
	ports "fluxo/internal/sheets"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	ledgerColumns  = "A:F"
	summaryColumns = "A:D"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base names without year; the year is prefixed per export.
	ledgerBase  string
	summaryBase string
}

// Ensure interface conformance
var _ ports.Exporter = (*Client)(nil)

type Options struct {
	SpreadsheetID   string
	LedgerBase      string // default "Lançamentos"
	SummaryBase     string // default "Resumo"
	CredentialsJSON string
	CredentialsFile string
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(opts.LedgerBase) == "" {
		opts.LedgerBase = "Lançamentos"
	}
	if strings.TrimSpace(opts.SummaryBase) == "" {
		opts.SummaryBase = "Resumo"
	}

	svc, err := newSheetsService(ctx, opts.CredentialsJSON, opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		ledgerBase:    opts.LedgerBase,
		summaryBase:   opts.SummaryBase,
	}, nil
}

// credentialsJSON resolves inline JSON, then the file, then
// GOOGLE_APPLICATION_CREDENTIALS.
func credentialsJSON(ctx context.Context, inline, file string) ([]byte, error) {
	inline = strings.TrimSpace(inline)
	file = strings.TrimSpace(file)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline JSON credentials")
		return []byte(inline), nil
	case file != "":
		slog.DebugContext(ctx, "Reading credentials from file", "path", file)
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func newSheetsService(ctx context.Context, inline, file string) (*gsheet.Service, error) {
	creds, err := credentialsJSON(ctx, inline, file)
	if err != nil {
		return nil, err
	}

	jwt, err := goauth.JWTConfigFromJSON(creds, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}

	// Token refreshes and API calls share the pooled transport
	httpCtx := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	service, err := gsheet.NewService(ctx,
		goption.WithHTTPClient(jwt.Client(httpCtx)),
		goption.WithUserAgent("fluxo-sheets-mirror"))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "scope", gsheet.SpreadsheetsScope)
	return service, nil
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// ExportYear clears the year's ledger sheet and rewrites it from rows.
func (c *Client) ExportYear(ctx context.Context, year int, rows []core.TransactionDetails) error {
	sheet := yearPrefixedName(c.ledgerBase, year)
	if err := c.replace(ctx, sheet, ledgerColumns, ledgerRows(rows)); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Exported ledger", "sheet", sheet, "rows", len(rows))
	return nil
}

// ExportSummary rewrites the year's monthly summary sheet.
func (c *Client) ExportSummary(ctx context.Context, year int, points []aggregate.MonthPoint) error {
	sheet := yearPrefixedName(c.summaryBase, year)
	if err := c.replace(ctx, sheet, summaryColumns, summaryRows(points)); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Exported summary", "sheet", sheet, "rows", len(points))
	return nil
}

func (c *Client) replace(ctx context.Context, sheet, columns string, values [][]any) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	clearRange := a1Range(sheet, columns)
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}

	writeRange := a1Range(sheet, "A1")
	vr := &gsheet.ValueRange{Values: values}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, writeRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", writeRange, err)
	}
	return nil
}
