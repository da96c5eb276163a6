package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/tenantops/internal/domain"
	"github.com/Harshitk-cp/tenantops/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type TenantHandler struct {
	svc    *service.TenantService
	logger *zap.Logger
}

func NewTenantHandler(svc *service.TenantService, logger *zap.Logger) *TenantHandler {
	return &TenantHandler{svc: svc, logger: logger}
}

type createTenantRequest struct {
	ID     string      `json:"id"`
	Slug   string      `json:"slug"`
	Name   string      `json:"name"`
	Tier   domain.Tier `json:"tier"`
	Region string      `json:"region"`
}

func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.svc.Create(r.Context(), service.CreateTenantInput{
		ID:     req.ID,
		Slug:   req.Slug,
		Name:   req.Name,
		Tier:   req.Tier,
		Region: req.Region,
	})
	if err != nil {
		h.writeServiceError(w, err, "failed to create tenant")
		return
	}

	writeJSON(w, http.StatusCreated, view)
}

func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "failed to get tenant")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *TenantHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.TenantUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Tier == nil && req.Status == nil && req.Name == nil {
		writeError(w, http.StatusBadRequest, "one of tier, status or name is required")
		return
	}

	view, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, err, "failed to update tenant")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err, "failed to delete tenant")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TenantHandler) Reprovision(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Reprovision(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "failed to reprovision tenant")
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

func (h *TenantHandler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrTenantNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrTenantConflict), errors.Is(err, service.ErrNotReprovisionable),
		errors.Is(err, service.ErrTenantDeleted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidTenant):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrReprovisionUnqueued):
		writeError(w, http.StatusServiceUnavailable, service.ErrReprovisionUnqueued.Error())
	default:
		h.logger.Error(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
