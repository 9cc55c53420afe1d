package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"cashbook/internal/core"
	"cashbook/internal/log"
	ports "cashbook/internal/sheets"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheet serves the two Values endpoints the client uses.
type fakeSheet struct {
	mu      sync.Mutex
	values  [][]any
	appends int
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
		var vr gsheet.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		first := len(f.values) + 1
		f.values = append(f.values, vr.Values...)
		f.appends++
		json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{
				"updatedRange": "Settlements!A" + strconv.Itoa(first) + ":J" + strconv.Itoa(len(f.values)),
			},
		})
	case r.Method == http.MethodGet:
		col := make([][]any, 0, len(f.values))
		for _, row := range f.values {
			col = append(col, row[:1])
		}
		json.NewEncoder(w).Encode(map[string]any{"values": col})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeSheet) {
	t.Helper()
	fake := &fakeSheet{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	c, err := NewWithService(svc, Config{SpreadsheetID: "sheet-1"}, log.Discard())
	if err != nil {
		t.Fatalf("NewWithService: %v", err)
	}
	return c, fake
}

func testExport(id uuid.UUID) ports.SettlementExport {
	return ports.SettlementExport{
		SettlementID: id,
		ExportedAt:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Debts: []core.Debt{
			{Name: "Rent", Amount: decimal.RequireFromString("400"), FromID: "a", ForID: "b"},
			{Name: "Gas", Amount: decimal.RequireFromString("25"), FromID: "a", ForID: "b"},
		},
	}
}

func TestAppendSettlement_WritesHeaderOnce(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	ref, err := c.AppendSettlement(ctx, testExport(uuid.New()))
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	if ref != "Settlements!A1:J3" {
		t.Errorf("ref = %s", ref)
	}
	if _, err := c.AppendSettlement(ctx, testExport(uuid.New())); err != nil {
		t.Fatalf("second append: %v", err)
	}

	if len(fake.values) != 5 {
		t.Fatalf("expected header and four rows, got %d", len(fake.values))
	}
	if fake.values[0][0] != "Settlement" {
		t.Errorf("first row = %v", fake.values[0])
	}
	if fake.values[3][0] == "Settlement" {
		t.Error("header written twice")
	}
}

func TestAppendSettlement_Idempotent(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()
	id := uuid.New()

	for i := 0; i < 3; i++ {
		if _, err := c.AppendSettlement(ctx, testExport(id)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if fake.appends != 1 {
		t.Fatalf("appends = %d, want 1", fake.appends)
	}

	ids, err := c.ExportedSettlements(ctx)
	if err != nil {
		t.Fatalf("ExportedSettlements: %v", err)
	}
	if len(ids) != 1 || !ids[id] {
		t.Fatalf("ids = %v", ids)
	}
}

func TestNewWithService_RequiresSpreadsheet(t *testing.T) {
	if _, err := NewWithService(nil, Config{}, log.Discard()); err == nil {
		t.Fatal("expected error without a spreadsheet id")
	}
}

func TestCredentials(t *testing.T) {
	if _, err := credentials(Config{}); err == nil {
		t.Fatal("expected error without credentials")
	}
	got, err := credentials(Config{CredentialsJSON: `{"type":"service_account"}`, CredentialsFile: "/does/not/exist"})
	if err != nil || !strings.Contains(string(got), "service_account") {
		t.Fatalf("inline JSON = %s, %v", got, err)
	}
	if _, err := credentials(Config{CredentialsFile: "/does/not/exist"}); err == nil {
		t.Fatal("expected error for a missing file")
	}
}
