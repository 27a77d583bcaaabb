package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/webklar/booking-platform/internal/customers"
	"github.com/webklar/booking-platform/internal/http/middleware"
	"github.com/webklar/booking-platform/internal/workflow"
	"github.com/webklar/booking-platform/pkg/logging"
)

// CustomerReader reads customer projects.
type CustomerReader interface {
	List(ctx context.Context, filter customers.ListFilter) ([]*customers.Project, error)
	GetByID(ctx context.Context, id string) (*customers.Project, error)
}

// StatusChanger applies workflow transitions.
type StatusChanger interface {
	Apply(ctx context.Context, id string, target customers.Status, actor string) (*customers.Project, error)
}

// AdminCustomersHandler serves the customer project admin area.
type AdminCustomersHandler struct {
	reader   CustomerReader
	workflow StatusChanger
	logger   *logging.Logger
}

// NewAdminCustomersHandler creates the admin customers handler.
func NewAdminCustomersHandler(reader CustomerReader, wf StatusChanger, logger *logging.Logger) *AdminCustomersHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminCustomersHandler{reader: reader, workflow: wf, logger: logger.Component("admin-customers")}
}

// StatusCounts tallies projects per appointment status.
type StatusCounts struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// ListCustomersResponse is returned by List.
type ListCustomersResponse struct {
	Customers []*customers.Project `json:"customers"`
	Counts    StatusCounts         `json:"counts"`
}

// DuplicatesResponse is returned by Duplicates.
type DuplicatesResponse struct {
	Groups []customers.DuplicateGroup `json:"groups"`
	Total  int                        `json:"total"`
}

// List handles GET /admin/customers?search=&status=&limit=. Counts cover
// every status for the current search so the tabs stay populated.
func (h *AdminCustomersHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := customers.ListFilter{Search: strings.TrimSpace(q.Get("search"))}

	if raw := q.Get("status"); raw != "" && raw != "all" {
		status, err := customers.ParseStatus(raw)
		if err != nil {
			jsonError(w, "status must be one of pending, running, completed", http.StatusBadRequest)
			return
		}
		filter.Status = status
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	all, err := h.reader.List(r.Context(), customers.ListFilter{Search: filter.Search})
	if err != nil {
		h.logger.Error("failed to list customers", "error", err)
		jsonError(w, "failed to list customers", http.StatusInternalServerError)
		return
	}

	resp := ListCustomersResponse{Customers: []*customers.Project{}}
	for _, p := range all {
		switch p.AppointmentStatus {
		case customers.StatusPending:
			resp.Counts.Pending++
		case customers.StatusRunning:
			resp.Counts.Running++
		case customers.StatusCompleted:
			resp.Counts.Completed++
		}
		resp.Counts.Total++
		if filter.Matches(p) && (limit == 0 || len(resp.Customers) < limit) {
			resp.Customers = append(resp.Customers, p)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /admin/customers/{id}.
func (h *AdminCustomersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.reader.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, customers.ErrNotFound) {
			jsonError(w, "customer not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load customer", "error", err, "customer_id", id)
		jsonError(w, "failed to load customer", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles POST /admin/customers/{id}/status.
func (h *AdminCustomersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	target, err := customers.ParseStatus(req.Status)
	if err != nil {
		jsonError(w, "status must be one of pending, running, completed", http.StatusBadRequest)
		return
	}

	actor := ""
	if claims, ok := middleware.AdminClaimsFromContext(r.Context()); ok {
		actor = claims.Actor()
	}

	p, err := h.workflow.Apply(r.Context(), id, target, actor)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, p)
	case errors.Is(err, workflow.ErrNotFound):
		jsonError(w, "customer not found", http.StatusNotFound)
	case errors.Is(err, workflow.ErrInvalidTransition):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, workflow.ErrActorRequired):
		jsonError(w, "admin identity is required to start an appointment", http.StatusForbidden)
	default:
		h.logger.Error("failed to update status", "error", err, "customer_id", id)
		jsonError(w, "failed to update status", http.StatusInternalServerError)
	}
}

// Duplicates handles GET /admin/customers/duplicates.
func (h *AdminCustomersHandler) Duplicates(w http.ResponseWriter, r *http.Request) {
	all, err := h.reader.List(r.Context(), customers.ListFilter{})
	if err != nil {
		h.logger.Error("failed to list customers", "error", err)
		jsonError(w, "failed to list customers", http.StatusInternalServerError)
		return
	}
	groups := customers.FindDuplicates(all)
	if groups == nil {
		groups = []customers.DuplicateGroup{}
	}
	writeJSON(w, http.StatusOK, DuplicatesResponse{Groups: groups, Total: len(groups)})
}
