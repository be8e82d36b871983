package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/retailgrid/inventory-engine/internal/domain"
	"github.com/retailgrid/inventory-engine/internal/service"
)

// Engine is the slice of the inventory service the ops surface needs.
type Engine interface {
	SweepExpired(ctx context.Context) (int64, error)
	ListLowStock(ctx context.Context, thresholdOverride *int) ([]domain.LowStockAlert, error)
}

// NewRouter builds the operational surface: liveness, on-demand reservation
// sweeps and the low-stock report. This is admin tooling, not the platform's
// business API.
func NewRouter(engine Engine, logger *zap.Logger) http.Handler {
	h := &handler{engine: engine, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", h.health)
	r.Post("/sweep", h.sweep)
	r.Get("/low-stock", h.lowStock)
	return r
}

type handler struct {
	engine Engine
	logger *zap.Logger
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) sweep(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.SweepExpired(r.Context())
	if err != nil {
		h.logger.Error("on-demand sweep failed", zap.Error(err))
		http.Error(w, "sweep failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": count})
}

func (h *handler) lowStock(w http.ResponseWriter, r *http.Request) {
	var override *int
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		t, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "threshold must be an integer", http.StatusBadRequest)
			return
		}
		override = &t
	}

	alerts, err := h.engine.ListLowStock(r.Context(), override)
	if errors.Is(err, service.ErrValidation) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error("low stock report failed", zap.Error(err))
		http.Error(w, "report failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
