/*
handlers.go - HTTP API handlers for the distribution engine

PURPOSE:
  Exposes the allocation workflow via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Catalog:
    GET    /api/catalog/products       List products
    GET    /api/catalog/stores         List stores
    GET    /api/catalog/cedis          List distribution centers

  Runs (wizard sessions):
    POST   /api/runs                   Start a wizard session
    GET    /api/runs/{id}              Session state
    POST   /api/runs/{id}/select       Choose CEDI and stores
    POST   /api/runs/{id}/advance      One step forward (gates apply)
    POST   /api/runs/{id}/back         One step backward
    GET    /api/runs/{id}/pairs        Per-pair demand/stock/need detail
    GET    /api/runs/{id}/conflicts    Conflicts with the override overlay
    GET    /api/runs/{id}/review       Draft orders as they would be saved
    PUT    /api/runs/{id}/overrides/{product}/{store}   Set manual value
    DELETE /api/runs/{id}/overrides/{product}/{store}   Revert to algorithmic

  Admin:
    POST   /api/admin/seed             Load the demo dataset

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Unknown session, product or store
  - 409: Illegal wizard transition
  - 422: Override gate violation (over-committed CEDI)
  - 504: Calculation timeout
  - 500: Internal errors

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - workflow/session.go: The state machine behind every run endpoint
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/andino/allocation-engine/allocation"
	"github.com/andino/allocation-engine/workflow"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is everything a run needs from storage.
type Backend interface {
	workflow.Catalog
	workflow.SalesHistory
	workflow.OpenOrders
	workflow.OrderWriter
}

// seeder is implemented by backends that can load the demo dataset.
type seeder interface {
	SeedDemo(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	backend Backend
	config  workflow.RunConfig
	log     *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*workflow.Session
}

// NewHandler creates a handler over the given backend. A nil logger is
// replaced with a no-op one.
func NewHandler(backend Backend, config workflow.RunConfig, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		backend:  backend,
		config:   config,
		log:      log,
		sessions: make(map[string]*workflow.Session),
	}
}

func (h *Handler) session(id string) (*workflow.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListProducts returns the product catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.backend.Products(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list products", err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = ProductDTO{
			Code:            p.Code,
			Name:            p.Name,
			UnitsPerPackage: p.UnitsPerPackage.String(),
			PriorityClass:   p.PriorityClass,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListStores returns all destination stores.
func (h *Handler) ListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.backend.Stores(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list stores", err)
		return
	}

	dtos := make([]StoreDTO, len(stores))
	for i, s := range stores {
		dtos[i] = StoreDTO{ID: s.ID, Name: s.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListCedis returns all distribution centers.
func (h *Handler) ListCedis(w http.ResponseWriter, r *http.Request) {
	cedis, err := h.backend.Cedis(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list CEDIs", err)
		return
	}

	dtos := make([]CediDTO, len(cedis))
	for i, c := range cedis {
		dtos[i] = CediDTO{ID: c.ID, Name: c.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// CreateRun starts a new wizard session.
// POST /api/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	runner := workflow.NewRunner(h.backend, h.backend, h.backend, h.config, h.log)
	session := workflow.NewSession(runner, h.backend, h.log)

	id := uuid.NewString()
	h.mu.Lock()
	h.sessions[id] = session
	h.mu.Unlock()

	h.log.Info("wizard session started", zap.String("session_id", id))
	writeJSON(w, http.StatusCreated, h.runDTO(id, session))
}

// GetRun returns the session state.
// GET /api/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, ok := h.session(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.runDTO(id, session))
}

// SelectStores records the CEDI and store selection.
// POST /api/runs/{id}/select
func (h *Handler) SelectStores(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, ok := h.session(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found", nil)
		return
	}

	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := session.Select(req.CediID, req.StoreIDs); err != nil {
		writeDomainError(w, "Selection rejected", err)
		return
	}
	writeJSON(w, http.StatusOK, h.runDTO(id, session))
}

// Advance moves the wizard one step forward.
// POST /api/runs/{id}/advance
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, ok := h.session(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found", nil)
		return
	}

	if _, err := session.Advance(r.Context()); err != nil {
		writeDomainError(w, "Cannot advance", err)
		return
	}
	writeJSON(w, http.StatusOK, h.runDTO(id, session))
}

// Back moves the wizard one step backward.
// POST /api/runs/{id}/back
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, ok := h.session(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found", nil)
		return
	}

	if _, err := session.Back(); err != nil {
		writeDomainError(w, "Cannot go back", err)
		return
	}
	writeJSON(w, http.StatusOK, h.runDTO(id, session))
}

// ListPairs returns the per-pair calculation detail.
// GET /api/runs/{id}/pairs
func (h *Handler) ListPairs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, ok := h.session(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found", nil)
		return
	}

	result, err := session.Result()
	if err != nil {
		writeDomainError(w, "No calculation available", err)
		return
	}

	dtos := make([]PairDTO, len(result.Pairs))
	for i, p := range result.Pairs {
		dtos[i] = toPairDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListConflicts returns conflicts with the current override overlay
// applied. By default only contested products; ?all=true includes every
// product with any need.
// GET /api/runs/{id}/conflicts
func (h *Handler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, ok := h.session(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found", nil)
		return
	}

	result, err := session.Result()
	if err != nil {
		writeDomainError(w, "No calculation available", err)
		return
	}

	conflicts := result.ContestedConflicts()
	if r.URL.Query().Get("all") == "true" {
		conflicts = result.Conflicts
	}

	dtos := make([]ConflictDTO, 0, len(conflicts))
	for _, c := range conflicts {
		dto, err := h.conflictDTO(session, &c)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to build conflict view", err)
			return
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Review returns the draft orders exactly as Confirm would save them.
// GET /api/runs/{id}/review
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, ok := h.session(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found", nil)
		return
	}

	orders, err := session.Orders()
	if err != nil {
		writeDomainError(w, "No calculation available", err)
		return
	}

	dtos := make([]OrderDTO, len(orders))
	for i, o := range orders {
		dtos[i] = toOrderDTO(o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SetOverride replaces the algorithmic allocation for one pair.
// PUT /api/runs/{id}/overrides/{product}/{store}
func (h *Handler) SetOverride(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, ok := h.session(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found", nil)
		return
	}

	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	packages, err := decimal.NewFromString(req.Packages)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid packages value", err)
		return
	}

	productCode := chi.URLParam(r, "product")
	storeID := chi.URLParam(r, "store")
	if err := session.SetOverride(productCode, storeID, packages); err != nil {
		writeDomainError(w, "Override rejected", err)
		return
	}

	h.writeConflictFor(w, session, productCode)
}

// ClearOverride reverts one pair to its algorithmic value.
// DELETE /api/runs/{id}/overrides/{product}/{store}
func (h *Handler) ClearOverride(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, ok := h.session(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found", nil)
		return
	}

	productCode := chi.URLParam(r, "product")
	storeID := chi.URLParam(r, "store")
	if err := session.ClearOverride(productCode, storeID); err != nil {
		writeDomainError(w, "Cannot clear override", err)
		return
	}

	h.writeConflictFor(w, session, productCode)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// SeedDemo loads the demo dataset into the backend.
// POST /api/admin/seed
func (h *Handler) SeedDemo(w http.ResponseWriter, r *http.Request) {
	s, ok := h.backend.(seeder)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Backend does not support seeding", nil)
		return
	}
	if err := s.SeedDemo(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Seed failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "seeded"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) runDTO(id string, session *workflow.Session) RunDTO {
	dto := RunDTO{
		ID:    id,
		State: string(session.State()),
	}
	dto.CediID, dto.StoreIDs = session.Selection()

	if result, err := session.Result(); err == nil {
		dto.RunID = result.RunID
		dto.ComputedAt = result.ComputedAt.Format(time.RFC3339)
		dto.ElapsedMs = result.Elapsed.Milliseconds()
		dto.HasConflicts = result.HasContestedConflict()
	}
	return dto
}

func (h *Handler) conflictDTO(session *workflow.Session, c *allocation.SupplyConflict) (ConflictDTO, error) {
	records, err := session.FinalDistribution(c.ProductCode)
	if err != nil {
		return ConflictDTO{}, err
	}
	excess, err := session.Excess(c.ProductCode)
	if err != nil {
		return ConflictDTO{}, err
	}

	return ConflictDTO{
		ProductCode:       c.ProductCode,
		AvailablePackages: c.AvailablePackagesAtCedi.String(),
		TotalNeedPackages: c.TotalNeedPackages.String(),
		IsConflict:        c.IsConflict,
		RequiresContest:   c.RequiresContest,
		UnmetPackages:     c.UnmetPackages.String(),
		ExcessPackages:    excess.String(),
		Distribution:      toAllocationDTOs(records),
	}, nil
}

// writeConflictFor answers override mutations with the refreshed view of
// the touched product.
func (h *Handler) writeConflictFor(w http.ResponseWriter, session *workflow.Session, productCode string) {
	result, err := session.Result()
	if err != nil {
		writeDomainError(w, "No calculation available", err)
		return
	}
	conflict := result.ConflictFor(productCode)
	if conflict == nil {
		writeError(w, http.StatusNotFound, "Product has no allocation in this run", nil)
		return
	}
	dto, err := h.conflictDTO(session, conflict)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build conflict view", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// writeDomainError maps workflow/allocation error kinds onto HTTP status
// codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, workflow.ErrNoSelection),
		errors.Is(err, allocation.ErrNegativeOverride):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, allocation.ErrUnknownAllocation):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrNotCalculated):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, allocation.ErrOverrideExceedsStock):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	case errors.Is(err, workflow.ErrCalculationTimeout):
		writeError(w, http.StatusGatewayTimeout, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
