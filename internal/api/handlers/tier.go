package handlers

import (
	"net/http"
	"strings"

	"github.com/Harshitk-cp/tenantops/internal/domain"
	"github.com/go-chi/chi/v5"
)

type TierHandler struct{}

func NewTierHandler() *TierHandler {
	return &TierHandler{}
}

type tierListResponse struct {
	Tiers []domain.TierPolicy `json:"tiers"`
	Count int                 `json:"count"`
}

func (h *TierHandler) List(w http.ResponseWriter, r *http.Request) {
	tiers := domain.AllTiers()
	policies := make([]domain.TierPolicy, 0, len(tiers))
	for _, t := range tiers {
		policies = append(policies, domain.PolicyForTier(t))
	}
	writeJSON(w, http.StatusOK, tierListResponse{Tiers: policies, Count: len(policies)})
}

func (h *TierHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := strings.ToUpper(chi.URLParam(r, "tier"))
	if !domain.ValidTier(name) {
		writeError(w, http.StatusNotFound, "unknown tier")
		return
	}
	writeJSON(w, http.StatusOK, domain.PolicyForTier(domain.Tier(name)))
}
