package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"taxprep/internal/core"
	"taxprep/internal/services"
	"taxprep/internal/store/memory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	svc := services.NewReturnService(memory.New(), nil)
	s := NewServer(":0", svc)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func createReturn(t *testing.T, s *Server) core.TaxRecord {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/returns", map[string]any{"tax_year": 2023})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create return status = %d, body = %s", rec.Code, rec.Body.String())
	}
	return decode[core.TaxRecord](t, rec)
}

func TestCreateAndGetReturn(t *testing.T) {
	s := newTestServer(t)

	created := createReturn(t, s)
	if created.TaxYear != 2023 {
		t.Errorf("TaxYear = %d, want 2023", created.TaxYear)
	}
	if created.State != core.InProgress {
		t.Errorf("State = %q, want %q", created.State, core.InProgress)
	}

	rec := doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/returns/%d", created.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	got := decode[core.TaxRecord](t, rec)
	if got.ID != created.ID {
		t.Errorf("ID = %d, want %d", got.ID, created.ID)
	}
}

func TestCreateReturnUnsupportedYear(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/returns", map[string]any{"tax_year": 1995})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestGetReturnNotFound(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/returns/999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetReturnBadID(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/returns/abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSectionUpdateFlow(t *testing.T) {
	s := newTestServer(t)
	created := createReturn(t, s)

	rec := doJSON(t, s, http.MethodPut, fmt.Sprintf("/api/returns/%d/personal", created.ID), map[string]any{
		"version": created.Version,
		"personal": map[string]any{
			"first_name": "Ada",
			"last_name":  "Lovelace",
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("personal status = %d, body = %s", rec.Code, rec.Body.String())
	}
	updated := decode[core.TaxRecord](t, rec)
	if updated.FilingStatus != core.Single {
		t.Errorf("FilingStatus = %q, want %q", updated.FilingStatus, core.Single)
	}
	if updated.Version != created.Version+1 {
		t.Errorf("Version = %d, want %d", updated.Version, created.Version+1)
	}

	rec = doJSON(t, s, http.MethodPut, fmt.Sprintf("/api/returns/%d/income", created.ID), map[string]any{
		"version": updated.Version,
		"income": map[string]any{
			"items": []map[string]any{
				{"kind": "wages", "description": "W-2 wages", "amount": 5_000_000},
			},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("income status = %d, body = %s", rec.Code, rec.Body.String())
	}
	updated = decode[core.TaxRecord](t, rec)
	if got := updated.Income.Total().Cents; got != 5_000_000 {
		t.Errorf("income total = %d, want 5000000", got)
	}
}

func TestSectionUpdateVersionConflict(t *testing.T) {
	s := newTestServer(t)
	created := createReturn(t, s)

	rec := doJSON(t, s, http.MethodPut, fmt.Sprintf("/api/returns/%d/income", created.ID), map[string]any{
		"version": created.Version + 5,
		"income":  map[string]any{},
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestUpdatePersonalContradictoryAnswers(t *testing.T) {
	s := newTestServer(t)
	created := createReturn(t, s)

	rec := doJSON(t, s, http.MethodPut, fmt.Sprintf("/api/returns/%d/personal", created.ID), map[string]any{
		"version":    created.Version,
		"personal":   map[string]any{"married": false},
		"preference": "joint",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body = %s", rec.Code, rec.Body.String())
	}
	resp := decode[errorResponse](t, rec)
	if resp.Field != "preference" {
		t.Errorf("Field = %q, want preference", resp.Field)
	}
}

func TestCalculateEndpoint(t *testing.T) {
	s := newTestServer(t)
	created := createReturn(t, s)

	rec := doJSON(t, s, http.MethodPut, fmt.Sprintf("/api/returns/%d/personal", created.ID), map[string]any{
		"version":  created.Version,
		"personal": map[string]any{},
	})
	updated := decode[core.TaxRecord](t, rec)

	rec = doJSON(t, s, http.MethodPut, fmt.Sprintf("/api/returns/%d/income", created.ID), map[string]any{
		"version": updated.Version,
		"income": map[string]any{
			"items": []map[string]any{
				{"kind": "wages", "description": "W-2 wages", "amount": 5_000_000},
			},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("income status = %d", rec.Code)
	}

	// First calculation populates the cache, second hits it; both return the
	// same figures.
	for i := 0; i < 2; i++ {
		rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/returns/%d/calculate", created.ID), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("calculate status = %d, body = %s", rec.Code, rec.Body.String())
		}
		results := decode[core.CalculatedResults](t, rec)
		if results.FederalTax.Cents != 411_800 {
			t.Errorf("FederalTax = %d, want 411800", results.FederalTax.Cents)
		}
	}
}

func TestCalculateIncompleteReturn(t *testing.T) {
	s := newTestServer(t)
	created := createReturn(t, s)

	// No filing status yet.
	rec := doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/returns/%d/calculate", created.ID), nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
	resp := decode[errorResponse](t, rec)
	if resp.Field != "validation" {
		t.Errorf("Field = %q, want validation", resp.Field)
	}
}

func TestCompleteLocksReturn(t *testing.T) {
	s := newTestServer(t)
	created := createReturn(t, s)

	rec := doJSON(t, s, http.MethodPut, fmt.Sprintf("/api/returns/%d/personal", created.ID), map[string]any{
		"version":  created.Version,
		"personal": map[string]any{},
	})
	updated := decode[core.TaxRecord](t, rec)

	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/returns/%d/complete", created.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d, body = %s", rec.Code, rec.Body.String())
	}
	completed := decode[core.TaxRecord](t, rec)
	if completed.State != core.Completed {
		t.Errorf("State = %q, want %q", completed.State, core.Completed)
	}

	rec = doJSON(t, s, http.MethodPut, fmt.Sprintf("/api/returns/%d/income", created.ID), map[string]any{
		"version": completed.Version,
		"income":  map[string]any{},
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("update after complete status = %d, want 409", rec.Code)
	}
	_ = updated
}

func TestDeleteReturn(t *testing.T) {
	s := newTestServer(t)
	created := createReturn(t, s)

	rec := doJSON(t, s, http.MethodDelete, fmt.Sprintf("/api/returns/%d", created.ID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/returns/%d", created.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestListReturnsYearFilter(t *testing.T) {
	s := newTestServer(t)

	doJSON(t, s, http.MethodPost, "/api/returns", map[string]any{"tax_year": 2022})
	doJSON(t, s, http.MethodPost, "/api/returns", map[string]any{"tax_year": 2023})

	rec := doJSON(t, s, http.MethodGet, "/api/returns?year=2023", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	records := decode[[]core.TaxRecord](t, rec)
	if len(records) != 1 || records[0].TaxYear != 2023 {
		t.Errorf("records = %+v, want one 2023 return", records)
	}
}

func TestResolveFilingStatusEndpoint(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantResult core.FilingStatus
	}{
		{
			name:       "married joint",
			body:       map[string]any{"married": true, "preference": "joint"},
			wantStatus: http.StatusOK,
			wantResult: core.MarriedJoint,
		},
		{
			name: "widow precedence",
			body: map[string]any{
				"spouse_died_within_two_years": true,
				"has_qualifying_child":         true,
				"has_dependents":               true,
				"pays_half_household_costs":    true,
			},
			wantStatus: http.StatusOK,
			wantResult: core.QualifyingWidow,
		},
		{
			name:       "unmarried joint is contradictory",
			body:       map[string]any{"married": false, "preference": "joint"},
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/api/filing-status", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				resp := decode[resolveStatusResponse](t, rec)
				if resp.FilingStatus != tt.wantResult {
					t.Errorf("FilingStatus = %q, want %q", resp.FilingStatus, tt.wantResult)
				}
			}
		})
	}
}

func TestImportBrokerageEndpoint(t *testing.T) {
	s := newTestServer(t)
	created := createReturn(t, s)

	rec := doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/returns/%d/import/brokerage", created.ID), map[string]any{
		"version": created.Version,
		"statement": map[string]any{
			"brokerage":        "Robinhood",
			"totalProceeds":    "1000.00",
			"totalCostBasis":   "750.00",
			"totalNetGainLoss": "250.00",
			"transactions": []map[string]any{
				{"description": "AAPL", "proceeds": "1000.00", "costBasis": "750.00", "netGainLoss": "250.00", "isLongTerm": true},
			},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d, body = %s", rec.Code, rec.Body.String())
	}
	updated := decode[core.TaxRecord](t, rec)
	if len(updated.Income.Items) != 1 || updated.Income.Items[0].Kind != core.CapitalGain {
		t.Errorf("income items = %+v, want one capital gain item", updated.Income.Items)
	}
}

func TestInvalidBodyRejected(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/returns", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
