package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"taxprep/internal/core"
	"taxprep/internal/filing"
	"taxprep/internal/importer"
)

type createReturnRequest struct {
	TaxYear int `json:"tax_year"`
}

func (s *Server) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	var req createReturnRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := s.service.CreateReturn(r.Context(), req.TaxYear)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListReturns(w http.ResponseWriter, r *http.Request) {
	taxYear := 0
	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid year filter")
			return
		}
		taxYear = y
	}

	records, err := s.service.ListReturns(r.Context(), taxYear)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if records == nil {
		records = []*core.TaxRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	rec, err := s.service.GetReturn(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.service.DeleteReturn(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	s.resultsCache.InvalidatePrefix(fmt.Sprintf("%d:", id))
	w.WriteHeader(http.StatusNoContent)
}

type updatePersonalRequest struct {
	Version    int64                    `json:"version"`
	Personal   core.PersonalInformation `json:"personal"`
	Preference filing.Preference        `json:"preference,omitempty"`
}

func (s *Server) handleUpdatePersonal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req updatePersonalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Personal.FirstName = sanitizeInput(req.Personal.FirstName)
	req.Personal.LastName = sanitizeInput(req.Personal.LastName)

	rec, err := s.service.UpdatePersonal(r.Context(), id, req.Version, req.Personal, req.Preference)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

type updateIncomeRequest struct {
	Version int64       `json:"version"`
	Income  core.Income `json:"income"`
}

func (s *Server) handleUpdateIncome(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req updateIncomeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	for i := range req.Income.Items {
		req.Income.Items[i].Description = sanitizeInput(req.Income.Items[i].Description)
	}

	rec, err := s.service.UpdateIncome(r.Context(), id, req.Version, req.Income)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

type updateAdjustmentsRequest struct {
	Version     int64            `json:"version"`
	Adjustments core.Adjustments `json:"adjustments"`
}

func (s *Server) handleUpdateAdjustments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req updateAdjustmentsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := s.service.UpdateAdjustments(r.Context(), id, req.Version, req.Adjustments)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

type updateDeductionsRequest struct {
	Version    int64           `json:"version"`
	Deductions core.Deductions `json:"deductions"`
}

func (s *Server) handleUpdateDeductions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req updateDeductionsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	for i := range req.Deductions.Items {
		req.Deductions.Items[i].Description = sanitizeInput(req.Deductions.Items[i].Description)
	}

	rec, err := s.service.UpdateDeductions(r.Context(), id, req.Version, req.Deductions)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

type updateCreditsRequest struct {
	Version    int64           `json:"version"`
	Credits    core.TaxCredits `json:"credits"`
	OtherTaxes core.Money      `json:"other_taxes"`
}

func (s *Server) handleUpdateCredits(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req updateCreditsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	for i := range req.Credits.Items {
		req.Credits.Items[i].Description = sanitizeInput(req.Credits.Items[i].Description)
	}

	rec, err := s.service.UpdateCredits(r.Context(), id, req.Version, req.Credits, req.OtherTaxes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

type updatePaymentsRequest struct {
	Version  int64         `json:"version"`
	Payments core.Payments `json:"payments"`
}

func (s *Server) handleUpdatePayments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req updatePaymentsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := s.service.UpdatePayments(r.Context(), id, req.Version, req.Payments)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

type importBrokerageRequest struct {
	Version   int64              `json:"version"`
	Statement importer.Statement `json:"statement"`
}

func (s *Server) handleImportBrokerage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req importBrokerageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := s.service.ImportBrokerage(r.Context(), id, req.Version, req.Statement)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	rec, err := s.service.GetReturn(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	cacheKey := fmt.Sprintf("%d:%d", rec.ID, rec.Version)
	if cached, hit := s.resultsCache.Get(cacheKey); hit {
		slog.DebugContext(r.Context(), "Calculation cache hit", "key", cacheKey)
		writeJSON(w, http.StatusOK, cached)
		return
	}

	results, err := s.service.Calculate(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	s.resultsCache.Set(cacheKey, results)
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	rec, err := s.service.CompleteReturn(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	results, err := s.service.GetResults(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, results)
}

type resolveStatusRequest struct {
	Married                  bool              `json:"married"`
	SeparatedOrDivorced      bool              `json:"separated_or_divorced"`
	HasDependents            bool              `json:"has_dependents"`
	PaysHalfHouseholdCosts   bool              `json:"pays_half_household_costs"`
	SpouseDiedWithinTwoYears bool              `json:"spouse_died_within_two_years"`
	HasQualifyingChild       bool              `json:"has_qualifying_child"`
	Preference               filing.Preference `json:"preference,omitempty"`
}

type resolveStatusResponse struct {
	FilingStatus core.FilingStatus `json:"filing_status"`
}

func (s *Server) handleResolveFilingStatus(w http.ResponseWriter, r *http.Request) {
	var req resolveStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	status, err := filing.Resolve(filing.StatusAnswers{
		Married:                  req.Married,
		SeparatedOrDivorced:      req.SeparatedOrDivorced,
		HasDependents:            req.HasDependents,
		PaysHalfHouseholdCosts:   req.PaysHalfHouseholdCosts,
		SpouseDiedWithinTwoYears: req.SpouseDiedWithinTwoYears,
		HasQualifyingChild:       req.HasQualifyingChild,
		Preference:               req.Preference,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resolveStatusResponse{FilingStatus: status})
}
