// Package sheets exports session summaries to Google Sheets, one tab per
// session, overwritten on every export.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"travelai/internal/core"
	"travelai/internal/log"
)

type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger

	mu    sync.Mutex
	known map[string]bool
}

// New authenticates with a service account and returns an Exporter.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Exporter, error) {
	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(ctx, cfg.SpreadsheetID, cfg.SheetName, logger,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

// NewWithOptions builds an Exporter from raw client options.
func NewWithOptions(ctx context.Context, spreadsheetID, sheetName string, logger *log.Logger, opts ...goption.ClientOption) (*Exporter, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if sheetName == "" {
		sheetName = "Settlement"
	}
	if logger == nil {
		logger = log.Discard()
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Exporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger.WithComponent(log.ComponentExport),
		known:         make(map[string]bool),
	}, nil
}

func credentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case cfg.CredentialsFile != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// TabTitle is the tab a session's summary is written to.
func (e *Exporter) TabTitle(sessionID string) string {
	return fmt.Sprintf("%s %s", e.sheetName, sessionID)
}

// ExportSummary replaces the session's tab with the current summary.
func (e *Exporter) ExportSummary(ctx context.Context, summary core.SessionSummary) error {
	title := e.TabTitle(summary.SessionID)
	if err := e.ensureTab(ctx, title); err != nil {
		return err
	}

	tab := "'" + strings.ReplaceAll(title, "'", "''") + "'"
	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, tab, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear tab %s: %w", title, err)
	}

	vr := &gsheet.ValueRange{Values: rows(summary)}
	if _, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, tab+"!A1", vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update tab %s: %w", title, err)
	}

	e.logger.DebugContext(ctx, "Summary written to sheet",
		log.FieldSessionID, summary.SessionID,
		"tab", title,
		"rows", len(vr.Values))
	return nil
}

// ensureTab creates the tab on first use. Known titles are remembered for
// the life of the exporter.
func (e *Exporter) ensureTab(ctx context.Context, title string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.known[title] {
		return nil
	}

	ss, err := e.svc.Spreadsheets.Get(e.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			e.known[sh.Properties.Title] = true
		}
	}
	if e.known[title] {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}},
	}
	if _, err := e.svc.Spreadsheets.BatchUpdate(e.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add tab %s: %w", title, err)
	}
	e.known[title] = true
	e.logger.InfoContext(ctx, "Created summary tab", "tab", title)
	return nil
}

// rows lays out a summary as sheet cells. Amounts are rounded to the
// currency's minor unit; the stored fractions are untouched.
func rows(s core.SessionSummary) [][]any {
	scale := int32(2)
	if n, err := core.CurrencyScale(s.CurrencyCode); err == nil {
		scale = int32(n)
	}
	money := func(a core.ExactAmount) string { return a.Round(scale).StringFixed(scale) }

	out := [][]any{
		{"Session", s.SessionID},
		{"Currency", s.CurrencyCode},
		{"Total", money(s.Total)},
		{"Unassigned", money(s.Unassigned)},
		{},
		{"Category", "Amount", "Share %"},
	}
	for _, c := range s.ByCategory {
		out = append(out, []any{string(c.Category), money(c.Amount), fmt.Sprintf("%.2f", c.Percentage)})
	}
	out = append(out, []any{}, []any{"Member", "Owes"})
	for _, m := range s.ByMember {
		name := m.DisplayName
		if name == "" {
			name = m.UserID
		}
		out = append(out, []any{name, money(m.Owed)})
	}
	out = append(out, []any{}, []any{"Payer", "Paid"})
	for _, p := range s.ByPayer {
		out = append(out, []any{p.UserID, money(p.Paid)})
	}
	out = append(out, []any{}, []any{"Day", "Amount"})
	for _, d := range s.ByDay {
		out = append(out, []any{d.Day.Format("2006-01-02"), money(d.Amount)})
	}
	return out
}
