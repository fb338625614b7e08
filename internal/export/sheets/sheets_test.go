package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	goption "google.golang.org/api/option"

	"travelai/internal/core"
)

func sampleSummary() core.SessionSummary {
	third := core.MustParseAmount("100/3")
	return core.SessionSummary{
		SessionID:    "seoul",
		CurrencyCode: "USD",
		Total:        core.MustParseAmount("130"),
		Unassigned:   core.MustParseAmount("30"),
		ByCategory: []core.SettlementCategoryTotal{
			{Category: core.Meal, Amount: core.MustParseAmount("100"), Percentage: 76.923076},
			{Category: core.Transport, Amount: core.MustParseAmount("30"), Percentage: 23.076923},
		},
		ByMember: []core.MemberTotal{
			{UserID: "a", DisplayName: "Alice", Owed: third},
			{UserID: "b", Owed: third},
		},
		ByPayer: []core.PayerTotal{{UserID: "a", Paid: core.MustParseAmount("130")}},
		ByDay:   []core.DailyTotal{{Day: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), Amount: core.MustParseAmount("130")}},
	}
}

func findRow(t *testing.T, rows [][]any, label string) []any {
	t.Helper()
	for _, r := range rows {
		if len(r) > 0 && r[0] == label {
			return r
		}
	}
	t.Fatalf("row %q not found in %v", label, rows)
	return nil
}

func TestRows(t *testing.T) {
	rows := rows(sampleSummary())

	if got := findRow(t, rows, "Total"); got[1] != "130.00" {
		t.Errorf("total cell = %v", got[1])
	}
	if got := findRow(t, rows, "Unassigned"); got[1] != "30.00" {
		t.Errorf("unassigned cell = %v", got[1])
	}
	if got := findRow(t, rows, "meal"); got[1] != "100.00" || got[2] != "76.92" {
		t.Errorf("meal row = %v", got)
	}
	if got := findRow(t, rows, "Alice"); got[1] != "33.33" {
		t.Errorf("alice row = %v", got)
	}
	// Members without a display name fall back to their id.
	findRow(t, rows, "b")
	if got := findRow(t, rows, "2025-07-01"); got[1] != "130.00" {
		t.Errorf("day row = %v", got)
	}
}

func TestRowsZeroDecimalCurrency(t *testing.T) {
	s := sampleSummary()
	s.CurrencyCode = "JPY"
	if got := findRow(t, rows(s), "Alice"); got[1] != "33" {
		t.Errorf("JPY amounts should have no decimals, got %v", got[1])
	}
}

type fakeSheetsAPI struct {
	mu      sync.Mutex
	titles  []string
	added   []string
	cleared []string
	updates map[string][][]any
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/spreadsheets/sheet-1"):
		var sheets []map[string]any
		for _, t := range f.titles {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": t}})
		}
		json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req struct {
			Requests []struct {
				AddSheet struct {
					Properties struct {
						Title string `json:"title"`
					} `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			f.added = append(f.added, rq.AddSheet.Properties.Title)
			f.titles = append(f.titles, rq.AddSheet.Properties.Title)
		}
		w.Write([]byte(`{}`))
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		f.cleared = append(f.cleared, path)
		w.Write([]byte(`{}`))
	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		if r.URL.Query().Get("valueInputOption") != "USER_ENTERED" {
			http.Error(w, "missing valueInputOption", http.StatusBadRequest)
			return
		}
		var body struct {
			Values [][]any `json:"values"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		rng := path[strings.Index(path, "/values/")+len("/values/"):]
		f.updates[rng] = body.Values
		w.Write([]byte(`{}`))
	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
	}
}

func newTestExporter(t *testing.T, api *fakeSheetsAPI) *Exporter {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	exp, err := NewWithOptions(context.Background(), "sheet-1", "Settlement", nil,
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	return exp
}

func TestExportSummary(t *testing.T) {
	api := &fakeSheetsAPI{titles: []string{"Sheet1"}, updates: map[string][][]any{}}
	exp := newTestExporter(t, api)
	ctx := context.Background()

	if err := exp.ExportSummary(ctx, sampleSummary()); err != nil {
		t.Fatalf("ExportSummary: %v", err)
	}
	if err := exp.ExportSummary(ctx, sampleSummary()); err != nil {
		t.Fatalf("second ExportSummary: %v", err)
	}

	if len(api.added) != 1 || api.added[0] != "Settlement seoul" {
		t.Fatalf("tabs added = %v", api.added)
	}
	if len(api.cleared) != 2 {
		t.Fatalf("expected a clear per export, got %v", api.cleared)
	}
	values, ok := api.updates["'Settlement seoul'!A1"]
	if !ok {
		t.Fatalf("no update for session tab, got %v", api.updates)
	}
	if len(values) == 0 || values[0][1] != "seoul" {
		t.Fatalf("unexpected first row: %v", values)
	}
}

func TestExportSummaryExistingTab(t *testing.T) {
	api := &fakeSheetsAPI{titles: []string{"Settlement seoul"}, updates: map[string][][]any{}}
	exp := newTestExporter(t, api)
	if err := exp.ExportSummary(context.Background(), sampleSummary()); err != nil {
		t.Fatalf("ExportSummary: %v", err)
	}
	if len(api.added) != 0 {
		t.Fatalf("existing tab should be reused, added %v", api.added)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "sheet-1"}, nil)
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected credentials error, got %v", err)
	}
	_, err = NewWithOptions(context.Background(), " ", "x", nil)
	if err == nil {
		t.Fatal("expected error for empty spreadsheet id")
	}
}
