// Package api exposes the procurement service over HTTP and streams
// committed events to websocket subscribers.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"procurecore/internal/adapters/reports"
	"procurecore/internal/core"
	"procurecore/pkg/domain"
)

const maxBodyBytes = 1 << 20

// Handler routes /api/v1 requests to the service.
type Handler struct {
	svc    *core.Service
	events http.Handler
	mux    *http.ServeMux
}

// NewHandler builds the router. events serves /api/v1/events and may be nil.
func NewHandler(svc *core.Service, events http.Handler) *Handler {
	h := &Handler{svc: svc, events: events, mux: http.NewServeMux()}
	h.routes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	m := h.mux
	m.HandleFunc("POST /api/v1/projects", h.createProject)
	m.HandleFunc("GET /api/v1/projects", h.listProjects)
	m.HandleFunc("GET /api/v1/projects/{id}", h.getProject)
	m.HandleFunc("GET /api/v1/projects/{id}/sync/preview", h.previewSync)
	m.HandleFunc("POST /api/v1/projects/{id}/sync", h.commitSync)
	m.HandleFunc("GET /api/v1/projects/{id}/sync", h.syncHistory)

	m.HandleFunc("POST /api/v1/rdos", h.createRDO)
	m.HandleFunc("GET /api/v1/rdos", h.listRDOs)
	m.HandleFunc("GET /api/v1/rdos/{id}", h.getRDO)
	m.HandleFunc("POST /api/v1/rdos/{id}/invitations", h.inviteVendors)
	m.HandleFunc("POST /api/v1/rdos/{id}/{transition}", h.transitionRDO)
	m.HandleFunc("POST /api/v1/rdos/{id}/offers", h.submitOffer)
	m.HandleFunc("GET /api/v1/rdos/{id}/offers", h.listOffers)
	m.HandleFunc("POST /api/v1/rdos/{id}/comparison", h.computeComparison)
	m.HandleFunc("GET /api/v1/rdos/{id}/comparison", h.getComparison)
	m.HandleFunc("GET /api/v1/rdos/{id}/comparison/workbook", h.comparisonWorkbook)
	m.HandleFunc("POST /api/v1/rdos/{id}/award", h.awardLines)
	m.HandleFunc("GET /api/v1/rdos/{id}/bundles", h.listBundles)

	m.HandleFunc("GET /api/v1/offers/{id}", h.getOffer)
	m.HandleFunc("POST /api/v1/offers/{id}/exclude", h.excludeOffer)
	m.HandleFunc("POST /api/v1/offers/{id}/withdraw", h.withdrawOffer)

	m.HandleFunc("PUT /api/v1/vendors/{id}/precheck", h.recordPreCheck)
	m.HandleFunc("GET /api/v1/vendors/{id}/precheck", h.getPreCheck)

	m.HandleFunc("GET /api/v1/bundles/{id}", h.getBundle)
	m.HandleFunc("GET /api/v1/bundles/{id}/settlement", h.bundleSettlement)
	m.HandleFunc("GET /api/v1/bundles/{id}/settlement/workbook", h.settlementWorkbook)
	m.HandleFunc("POST /api/v1/bundles/{id}/milestones/{index}/{transition}", h.transitionMilestone)

	m.HandleFunc("POST /api/v1/contract-lines/{id}/sal", h.recordSAL)
	m.HandleFunc("POST /api/v1/contract-lines/{id}/sal/corrections", h.correctSAL)
	m.HandleFunc("GET /api/v1/contract-lines/{id}/sal", h.salHistory)
	m.HandleFunc("GET /api/v1/contract-lines/{id}/ledger", h.lineLedger)

	if h.events != nil {
		m.Handle("GET /api/v1/events", h.events)
	}
}

// envelope is the body of every successful response. Warnings carry
// non-blocking rule violations raised by the write.
type envelope struct {
	Data     any                `json:"data"`
	Warnings []domain.Violation `json:"warnings,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any, res core.Result) {
	writeJSON(w, status, envelope{Data: data, Warnings: res.Warnings()})
}

// requireVersion rejects a mutating request that carries no expected_version.
// The service treats zero as an unconditional write; the API never does.
func requireVersion(w http.ResponseWriter, version int64) bool {
	if version > 0 {
		return true
	}
	writeError(w, domain.ValidationError{Field: "expected_version", Message: "must be the current version of the entity"})
	return false
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error(), Kind: "bad_request"})
		return false
	}
	return true
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	var project domain.Project
	if !decode(w, r, &project) {
		return
	}
	created, res, err := h.svc.CreateProject(r.Context(), project)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, created, res)
}

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.Projects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, projects, core.Result{})
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.svc.Project(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, project, core.Result{})
}

func (h *Handler) createRDO(w http.ResponseWriter, r *http.Request) {
	var rdo domain.RDO
	if !decode(w, r, &rdo) {
		return
	}
	created, res, err := h.svc.CreateRDO(r.Context(), rdo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, created, res)
}

func (h *Handler) listRDOs(w http.ResponseWriter, r *http.Request) {
	rdos, err := h.svc.RDOs(r.Context(), r.URL.Query().Get("project"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, rdos, core.Result{})
}

func (h *Handler) getRDO(w http.ResponseWriter, r *http.Request) {
	rdo, err := h.svc.RDO(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, rdo, core.Result{})
}

type inviteRequest struct {
	VendorIDs       []string `json:"vendor_ids"`
	ExpectedVersion int64    `json:"expected_version"`
}

func (h *Handler) inviteVendors(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if !decode(w, r, &req) {
		return
	}
	if !requireVersion(w, req.ExpectedVersion) {
		return
	}
	rdo, res, err := h.svc.InviteVendors(r.Context(), r.PathValue("id"), req.ExpectedVersion, req.VendorIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, rdo, res)
}

type transitionRequest struct {
	ExpectedVersion int64  `json:"expected_version"`
	Reason          string `json:"reason,omitempty"`
}

func (h *Handler) transitionRDO(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, id, version := r.Context(), r.PathValue("id"), req.ExpectedVersion
	var apply func() (domain.RDO, core.Result, error)
	switch r.PathValue("transition") {
	case "open":
		apply = func() (domain.RDO, core.Result, error) { return h.svc.OpenRDO(ctx, id, version) }
	case "evaluate":
		apply = func() (domain.RDO, core.Result, error) { return h.svc.StartEvaluation(ctx, id, version) }
	case "cancel":
		apply = func() (domain.RDO, core.Result, error) { return h.svc.CancelRDO(ctx, id, version, req.Reason) }
	default:
		http.NotFound(w, r)
		return
	}
	if !requireVersion(w, version) {
		return
	}
	rdo, res, err := apply()
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, rdo, res)
}

func (h *Handler) submitOffer(w http.ResponseWriter, r *http.Request) {
	var req core.SubmitOfferRequest
	if !decode(w, r, &req) {
		return
	}
	req.RDOID = r.PathValue("id")
	offer, res, err := h.svc.SubmitOffer(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, offer, res)
}

func (h *Handler) listOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.svc.Offers(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, offers, core.Result{})
}

func (h *Handler) getOffer(w http.ResponseWriter, r *http.Request) {
	offer, err := h.svc.Offer(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, offer, core.Result{})
}

func (h *Handler) excludeOffer(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !decode(w, r, &req) {
		return
	}
	if !requireVersion(w, req.ExpectedVersion) {
		return
	}
	offer, res, err := h.svc.ExcludeOffer(r.Context(), r.PathValue("id"), req.ExpectedVersion, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, offer, res)
}

func (h *Handler) withdrawOffer(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !decode(w, r, &req) {
		return
	}
	if !requireVersion(w, req.ExpectedVersion) {
		return
	}
	offer, res, err := h.svc.WithdrawOffer(r.Context(), r.PathValue("id"), req.ExpectedVersion)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, offer, res)
}

func (h *Handler) computeComparison(w http.ResponseWriter, r *http.Request) {
	cmp, res, err := h.svc.ComputeComparison(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, cmp, res)
}

func (h *Handler) getComparison(w http.ResponseWriter, r *http.Request) {
	cmp, err := h.svc.Comparison(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, cmp, core.Result{})
}

func (h *Handler) comparisonWorkbook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rdo, err := h.svc.RDO(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	cmp, err := h.svc.Comparison(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	buf, err := reports.ComparisonWorkbook(rdo, cmp)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", reports.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "comparison-"+id+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) awardLines(w http.ResponseWriter, r *http.Request) {
	var req core.AwardRequest
	if !decode(w, r, &req) {
		return
	}
	if !requireVersion(w, req.ExpectedVersion) {
		return
	}
	req.RDOID = r.PathValue("id")
	outcome, res, err := h.svc.AwardLines(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, outcome, res)
}

func (h *Handler) listBundles(w http.ResponseWriter, r *http.Request) {
	bundles, err := h.svc.Bundles(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, bundles, core.Result{})
}

func (h *Handler) recordPreCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []domain.PreCheckItem `json:"items"`
	}
	if !decode(w, r, &req) {
		return
	}
	result, res, err := h.svc.RecordPreCheck(r.Context(), r.PathValue("id"), req.Items)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, result, res)
}

func (h *Handler) getPreCheck(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.PreCheck(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, result, core.Result{})
}

func (h *Handler) getBundle(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.svc.Bundle(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, bundle, core.Result{})
}

func (h *Handler) bundleSettlement(w http.ResponseWriter, r *http.Request) {
	settlement, err := h.svc.BundleSettlement(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, settlement, core.Result{})
}

func (h *Handler) settlementWorkbook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	report, err := h.svc.SettlementReport(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	buf, err := reports.SettlementWorkbook(report.Bundle, report.Settlement, report.Entries)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", reports.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "settlement-"+id+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) transitionMilestone(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, domain.ValidationError{Field: "index", Message: "must be an integer"})
		return
	}
	var req transitionRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, id, version := r.Context(), r.PathValue("id"), req.ExpectedVersion
	var apply func() (domain.ContractBundle, core.Result, error)
	switch r.PathValue("transition") {
	case "payable":
		apply = func() (domain.ContractBundle, core.Result, error) {
			return h.svc.MarkMilestonePayable(ctx, id, index, version)
		}
	case "paid":
		apply = func() (domain.ContractBundle, core.Result, error) {
			return h.svc.MarkMilestonePaid(ctx, id, index, version)
		}
	case "skip":
		apply = func() (domain.ContractBundle, core.Result, error) {
			return h.svc.SkipMilestone(ctx, id, index, version, req.Reason)
		}
	default:
		http.NotFound(w, r)
		return
	}
	if !requireVersion(w, version) {
		return
	}
	bundle, res, err := apply()
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, bundle, res)
}

type salRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	CorrectsID  string          `json:"corrects_id,omitempty"`
}

func (h *Handler) recordSAL(w http.ResponseWriter, r *http.Request) {
	var req salRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, res, err := h.svc.RecordSAL(r.Context(), r.PathValue("id"), req.Amount, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, receipt, res)
}

func (h *Handler) correctSAL(w http.ResponseWriter, r *http.Request) {
	var req salRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, res, err := h.svc.CorrectSAL(r.Context(), r.PathValue("id"), req.CorrectsID, req.Amount, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, receipt, res)
}

func (h *Handler) salHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.SALHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, entries, core.Result{})
}

func (h *Handler) lineLedger(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.svc.LineLedger(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, ledger, core.Result{})
}

func (h *Handler) previewSync(w http.ResponseWriter, r *http.Request) {
	preview, err := h.svc.PreviewBusinessPlanSync(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, preview, core.Result{})
}

func (h *Handler) commitSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PreviewID string `json:"preview_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	diff, res, err := h.svc.CommitBusinessPlanSync(r.Context(), r.PathValue("id"), req.PreviewID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, diff, res)
}

func (h *Handler) syncHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.svc.SyncHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, history, core.Result{})
}

// errorBody is the body of every failed response.
type errorBody struct {
	Error      string             `json:"error"`
	Kind       string             `json:"kind"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

// StatusFor maps service errors onto HTTP statuses.
func StatusFor(err error) (int, string) {
	var (
		notFound  core.ErrNotFound
		violation core.RuleViolationError
	)
	switch {
	case domain.IsValidation(err):
		return http.StatusUnprocessableEntity, "validation"
	case domain.IsGate(err):
		return http.StatusPreconditionFailed, "gate"
	case domain.IsConflict(err):
		return http.StatusConflict, "conflict"
	case domain.IsDataIntegrity(err):
		return http.StatusInternalServerError, "data_integrity"
	case errors.As(err, &notFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &violation):
		return http.StatusConflict, "rule_violation"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := StatusFor(err)
	body := errorBody{Error: err.Error(), Kind: kind}
	var violation core.RuleViolationError
	if errors.As(err, &violation) {
		body.Violations = violation.Result.Violations
	}
	writeJSON(w, status, body)
}
