package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/oapi-codegen/runtime"

	"github.com/taxbridge/taxprep/internal/adapters/http/openapi"
	"github.com/taxbridge/taxprep/internal/config"
	"github.com/taxbridge/taxprep/internal/core/domain"
	"github.com/taxbridge/taxprep/internal/core/ports"
	"github.com/taxbridge/taxprep/internal/observability/metrics"
)

const (
	serviceName  = "api"
	xlsxMIMEType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Services groups the inbound operations the router exposes.
type Services struct {
	Trigger ports.ProcessingTrigger
	Status  ports.AIStatusReader
	Cancel  ports.ProcessingCanceller
	Audit   ports.ExtractionAuditor
}

// TokenVerifier turns a bearer token into the calling actor.
type TokenVerifier interface {
	Verify(token string) (domain.Actor, error)
}

type Router struct {
	services Services
	verifier TokenVerifier
	openapi  routers.Router
	metrics  *metrics.HTTPServerMetrics

	rateLimitRPS          int
	rateLimitBurst        int
	backpressureMaxFlight int
	backpressureWait      time.Duration
}

type Option func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) Option {
	return func(rt *Router) {
		rt.metrics = m
	}
}

func NewRouter(cfg config.Config, services Services, verifier TokenVerifier, opts ...Option) (*Router, error) {
	if services.Trigger == nil || services.Status == nil || services.Cancel == nil || services.Audit == nil {
		return nil, fmt.Errorf("all inbound services are required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("token verifier is required")
	}

	doc, err := openapi.Load(context.Background())
	if err != nil {
		return nil, err
	}
	openapiRouter, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}

	rt := &Router{
		services:              services,
		verifier:              verifier,
		openapi:               openapiRouter,
		rateLimitRPS:          cfg.APIRateLimitRPS,
		rateLimitBurst:        cfg.APIRateLimitBurst,
		backpressureMaxFlight: cfg.APIBackpressureMaxInFlight,
		backpressureWait:      time.Duration(cfg.APIBackpressureWaitMS) * time.Millisecond,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt, nil
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/tax-returns/{id}/ai-processing", rt.triggerProcessing)
	api.HandleFunc("GET /v1/tax-returns/{id}/ai-status", rt.getAIStatus)
	api.HandleFunc("POST /v1/tax-returns/{id}/ai-cancel", rt.cancelProcessing)
	api.HandleFunc("GET /v1/tax-returns/{id}/extractions", rt.listExtractions)
	api.HandleFunc("GET /v1/tax-returns/{id}/extractions.xlsx", rt.exportExtractions)

	var protected http.Handler = api
	protected = openAPIValidationMiddleware(rt.openapi, protected)
	protected = authMiddleware(rt.verifier, protected)
	protected = backpressureMiddleware(protected, rt.backpressureMaxFlight, rt.backpressureWait)
	protected = rateLimitMiddleware(protected, rt.rateLimitRPS, rt.rateLimitBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", protected)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) triggerProcessing(w http.ResponseWriter, r *http.Request) {
	id, ok := taxReturnIDParam(w, r)
	if !ok {
		return
	}
	view, err := rt.services.Trigger.Trigger(r.Context(), actorFromContext(r.Context()), id)
	rt.recordCommand("trigger", err)
	if err != nil {
		writeError(w, r, "trigger ai processing", err)
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

func (rt *Router) getAIStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := taxReturnIDParam(w, r)
	if !ok {
		return
	}
	view, err := rt.services.Status.GetAIStatus(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, "get ai status", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) cancelProcessing(w http.ResponseWriter, r *http.Request) {
	id, ok := taxReturnIDParam(w, r)
	if !ok {
		return
	}
	view, err := rt.services.Cancel.Cancel(r.Context(), actorFromContext(r.Context()), id)
	rt.recordCommand("cancel", err)
	if err != nil {
		writeError(w, r, "cancel ai processing", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) listExtractions(w http.ResponseWriter, r *http.Request) {
	id, ok := taxReturnIDParam(w, r)
	if !ok {
		return
	}
	rows, err := rt.services.Audit.ListExtractions(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, "list extractions", err)
		return
	}

	status := domain.ExtractionStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	out := make([]domain.DocumentExtraction, 0, len(rows))
	for _, row := range rows {
		if status != "" && row.Status != status {
			continue
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, map[string]any{"extractions": out})
}

func (rt *Router) exportExtractions(w http.ResponseWriter, r *http.Request) {
	id, ok := taxReturnIDParam(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	err := rt.services.Audit.ExportExtractions(r.Context(), actorFromContext(r.Context()), id, &buf)
	rt.recordCommand("export", err)
	if err != nil {
		writeError(w, r, "export extractions", err)
		return
	}

	w.Header().Set("Content-Type", xlsxMIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="extractions-%s.xlsx"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (rt *Router) recordCommand(command string, err error) {
	if rt.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = errorClass(err)
	}
	rt.metrics.RecordCommand(serviceName, command, result)
}

func taxReturnIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", r.PathValue("id"), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil || strings.TrimSpace(id) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tax return id is required"})
		return "", false
	}
	return id, true
}

func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"op", op,
			"error", err,
		)
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
