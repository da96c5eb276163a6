package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/tenantops/internal/domain"
	"github.com/Harshitk-cp/tenantops/internal/federation"
	"github.com/Harshitk-cp/tenantops/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ConsoleBroker issues console sign-in sessions.
type ConsoleBroker interface {
	IssueConsoleAccess(ctx context.Context, req domain.ConsoleAccessRequest) (*domain.ConsoleSession, error)
}

// ConsoleHandler serves console access for existing tenants only.
type ConsoleHandler struct {
	tenants *service.TenantService
	broker  ConsoleBroker
	logger  *zap.Logger
}

func NewConsoleHandler(tenants *service.TenantService, broker ConsoleBroker, logger *zap.Logger) *ConsoleHandler {
	return &ConsoleHandler{tenants: tenants, broker: broker, logger: logger}
}

type consoleAccessRequest struct {
	ParticipantID   string `json:"participant_id"`
	SessionID       string `json:"session_id"`
	RoleARN         string `json:"role_arn"`
	DurationSeconds int32  `json:"duration_seconds"`
	Destination     string `json:"destination"`
}

func (h *ConsoleHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req consoleAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ParticipantID == "" || req.SessionID == "" || req.RoleARN == "" {
		writeError(w, http.StatusBadRequest, "participant_id, session_id and role_arn are required")
		return
	}

	view, err := h.tenants.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, service.ErrTenantNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("failed to load tenant for console access", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to issue console access")
		return
	}
	if view.Tenant.Status != domain.TenantStatusActive {
		writeError(w, http.StatusForbidden, "tenant is not active")
		return
	}

	session, err := h.broker.IssueConsoleAccess(r.Context(), domain.ConsoleAccessRequest{
		TenantID:        view.Tenant.ID,
		ParticipantID:   req.ParticipantID,
		SessionID:       req.SessionID,
		RoleARN:         req.RoleARN,
		DurationSeconds: req.DurationSeconds,
		Destination:     req.Destination,
	})
	if err != nil {
		var stepErr *federation.StepError
		switch {
		case errors.Is(err, federation.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &stepErr):
			// The step name is safe to expose; upstream detail is not.
			writeError(w, http.StatusBadGateway, "console federation failed at "+string(stepErr.Step))
		default:
			writeError(w, http.StatusInternalServerError, "failed to issue console access")
		}
		return
	}

	writeJSON(w, http.StatusOK, session)
}
