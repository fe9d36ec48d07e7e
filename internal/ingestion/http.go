package ingestion

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/your-org/assetflow/internal/asset"
	"github.com/your-org/assetflow/internal/discovery"
	"github.com/your-org/assetflow/internal/submission"
)

// HTTPHandler exposes the pipeline stages to an external orchestrator.
type HTTPHandler struct {
	service      *Service
	logger       *zap.Logger
	maxBodyBytes int64
	router       chi.Router
}

// NewHTTPHandler constructs the HTTP handler and wires routes.
func NewHTTPHandler(service *Service, logger *zap.Logger, maxBodyBytes int64) *HTTPHandler {
	h := &HTTPHandler{
		service:      service,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
	h.buildRouter()
	return h
}

func (h *HTTPHandler) buildRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Minute))

	r.Get("/healthz", h.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/discover", h.handleDiscover)
		r.Post("/transfer", h.handleTransfer)
		r.Post("/submit", h.handleSubmit)
	})

	h.router = r
}

// Router exposes the configured chi router.
func (h *HTTPHandler) Router() http.Handler {
	return h.router
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *HTTPHandler) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req discovery.Request
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.Discover(r.Context(), req)
	if err != nil {
		h.fail(w, r, "discover", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *HTTPHandler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var batch []asset.Descriptor
	if !h.decode(w, r, &batch) {
		return
	}
	out, err := h.service.Transfer(r.Context(), batch)
	if err != nil {
		h.fail(w, r, "transfer", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	req, err := submission.ParseEvent(raw)
	if err != nil {
		h.fail(w, r, "submit", err)
		return
	}
	out, err := h.service.Submit(r.Context(), req)
	if err != nil {
		h.fail(w, r, "submit", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, stage string, err error) {
	status := StatusFor(err)
	h.logger.Error("stage failed",
		zap.String("stage", stage),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Int("status", status),
		zap.Error(err),
	)
	writeError(w, status, err.Error())
}

// StatusFor maps a stage error onto an HTTP status for the orchestrator.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, asset.ErrSchema):
		return http.StatusBadRequest
	case errors.Is(err, asset.ErrPartialPipeline):
		return http.StatusBadGateway
	case errors.Is(err, asset.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, asset.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}
