package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"energy_dashboard/internal/config"
	"energy_dashboard/internal/dashboard"
	"energy_dashboard/internal/energy"
	"energy_dashboard/internal/homeassistant"
	"energy_dashboard/internal/integration"

	"github.com/carlmjohnson/versioninfo"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// snapshotCache is the last entity snapshot, used to split sensor lists by unit
type snapshotCache interface {
	Current() *homeassistant.Snapshot
}

type app struct {
	integ    *integration.Integration
	flows    *integration.FlowManager
	registry snapshotCache
	hub      http.Handler
	logger   *zap.Logger
}

// quietPaths are polled endpoints that shouldn't spam logs
var quietPaths = map[string]bool{
	"/healthz":     true,
	"/api/sensors": true,
	"/api/chart":   true,
}

func newRouter(cfg *config.Config, a *app) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(a.logger))
	r.Use(middleware.Compress(5))

	r.Get("/healthz", handleHealth)

	if a.hub != nil {
		r.Get("/ws", a.hub.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(requireToken(cfg.APIToken))

		r.Get("/sensors", a.handleGetSensors)
		r.Get("/chart", a.handleGetChart)
		r.Post("/services/"+integration.Domain+"/{service}", a.handleCallService)

		r.Get("/dashboard", a.handleGetDashboard)
		r.Post("/dashboard", a.handleServiceRoute(integration.ServiceCreateDashboard))
		r.Delete("/dashboard", a.handleServiceRoute(integration.ServiceRemoveDashboard))

		r.Get("/entries", a.handleGetEntries)
		r.Delete("/entries/{entryID}", a.handleDeleteEntry)

		r.Post("/config/flow", a.handleStartConfigFlow)
		r.Post("/config/flow/{flowID}", a.handleConfigFlowStep)
		r.Post("/options/flow", a.handleStartOptionsFlow)
		r.Post("/options/flow/{flowID}", a.handleOptionsFlowStep)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Token"},
	})
	return c.Handler(r)
}

// requestLogger logs each request through zap, skipping quietPaths
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logger.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if quietPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// requireToken checks the Authorization bearer token or X-API-Token header.
// An empty token disables the check.
func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-API-Token")
			if auth := r.Header.Get("Authorization"); auth != "" {
				got = strings.TrimPrefix(auth, "Bearer ")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": versioninfo.Short(),
	})
}

func (a *app) instance(w http.ResponseWriter, r *http.Request) (*integration.Instance, bool) {
	inst, err := a.integ.Instance(r.URL.Query().Get("entry_id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return inst, true
}

func (a *app) handleGetSensors(w http.ResponseWriter, r *http.Request) {
	inst, ok := a.instance(w, r)
	if !ok {
		return
	}
	sensors := inst.Sensors()

	var entities []energy.Entity
	if a.registry != nil {
		if snap := a.registry.Current(); snap != nil {
			entities = snap.Entities
		}
	}
	power, energySensors := energy.PartitionByUnit(entities, sensors)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sensors": sensors,
		"power":   power,
		"energy":  energySensors,
	})
}

func (a *app) handleGetChart(w http.ResponseWriter, r *http.Request) {
	inst, ok := a.instance(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"series": inst.Chart()})
}

func (a *app) handleCallService(w http.ResponseWriter, r *http.Request) {
	a.callService(w, r, chi.URLParam(r, "service"))
}

func (a *app) handleServiceRoute(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.callService(w, r, service)
	}
}

func (a *app) callService(w http.ResponseWriter, r *http.Request, service string) {
	data, err := decodeObject(r)
	if err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	entryID := r.URL.Query().Get("entry_id")
	call := integration.ServiceCall{Service: service, EntryID: entryID, Data: data}
	if err := a.integ.Call(r.Context(), call); err != nil {
		a.logger.Warn("service call failed", zap.String("service", service), zap.Error(err))
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{"service": integration.Domain + "." + service, "success": true}
	inst, err := a.integ.Instance(entryID)
	if err == nil {
		switch service {
		case integration.ServiceGetSensors:
			resp["sensors"] = inst.Sensors()
		case integration.ServiceUpdateChart:
			resp["series"] = inst.Chart()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *app) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	inst, ok := a.instance(w, r)
	if !ok {
		return
	}
	doc := a.integ.Document(inst)

	if r.URL.Query().Get("format") == "yaml" {
		data, err := dashboard.MarshalYAML(doc)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(data)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *app) handleGetEntries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.integ.Entries())
}

func (a *app) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := a.integ.Detach(r.Context(), chi.URLParam(r, "entryID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *app) handleStartConfigFlow(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.flows.Start(r.Context()))
}

func (a *app) handleConfigFlowStep(w http.ResponseWriter, r *http.Request) {
	input, err := decodeObject(r)
	if err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	result, err := a.flows.Configure(r.Context(), chi.URLParam(r, "flowID"), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *app) handleStartOptionsFlow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EntryID string `json:"entry_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	result, err := a.flows.StartOptions(r.Context(), req.EntryID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *app) handleOptionsFlowStep(w http.ResponseWriter, r *http.Request) {
	input, err := decodeObject(r)
	if err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	result, err := a.flows.ConfigureOptions(r.Context(), chi.URLParam(r, "flowID"), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decodeObject reads an optional JSON object body. An empty body is an
// empty object.
func decodeObject(r *http.Request) (map[string]interface{}, error) {
	data := map[string]interface{}{}
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	return data, nil
}

func statusFor(err error) int {
	var apiErr *homeassistant.APIError
	switch {
	case errors.Is(err, integration.ErrUnknownService),
		errors.Is(err, integration.ErrUnknownEntry),
		errors.Is(err, integration.ErrUnknownFlow):
		return http.StatusNotFound
	case errors.Is(err, integration.ErrNotInitialized),
		errors.Is(err, integration.ErrNoRegistrar):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
