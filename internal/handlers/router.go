package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xelth-com/eckprint/internal/apperr"
	"github.com/xelth-com/eckprint/internal/bridge"
	"github.com/xelth-com/eckprint/internal/buildinfo"
	"github.com/xelth-com/eckprint/internal/logger"
	"github.com/xelth-com/eckprint/internal/middleware"
	"github.com/xelth-com/eckprint/internal/models"
	"github.com/xelth-com/eckprint/internal/services/printer"
	"github.com/xelth-com/eckprint/internal/store"
	"github.com/xelth-com/eckprint/internal/websocket"
)

// JobLister is the part of the pipeline behind /api/jobs
type JobLister interface {
	ListAllJobs(ctx context.Context, filter models.JobFilter) (models.JobList, error)
}

// Deps are the collaborators served over HTTP
type Deps struct {
	Jobs     JobLister
	Printers printer.Dispatcher
	Hub      *websocket.Hub
	Bridge   *bridge.Bridge
	Secret   string
}

// Router wraps the mux router and the agent services
type Router struct {
	*mux.Router
	deps Deps
	log  *zap.Logger
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(deps Deps, log *zap.Logger) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		deps:   deps,
		log:    logger.OrNop(log).Named("http"),
	}
	auth := middleware.BridgeAuth(deps.Secret, log)

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// API routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth)
	api.HandleFunc("/status", r.getStatus).Methods("GET")
	api.HandleFunc("/jobs", r.listJobs).Methods("GET")

	// Bridge channel
	if deps.Hub != nil && deps.Bridge != nil {
		r.Handle("/ws", auth(http.HandlerFunc(r.serveWs))).Methods("GET")
	}

	return r
}

// healthCheck returns the health status of the agent
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"server": "local",
	})
}

// getStatus returns build information and what the agent can see
func (r *Router) getStatus(w http.ResponseWriter, req *http.Request) {
	status := map[string]interface{}{
		"status": "running",
		"build":  buildinfo.Current(),
	}
	if r.deps.Printers != nil {
		names, err := r.deps.Printers.ListInstalled(req.Context())
		if err != nil {
			r.log.Warn("printer enumeration failed", zap.Error(err))
			status["printerError"] = apperr.Message(err)
		}
		status["printerCount"] = len(names)
	}
	if r.deps.Hub != nil {
		status["clients"] = r.deps.Hub.ClientCount()
	}
	respondJSON(w, http.StatusOK, status)
}

// listJobs returns the same payload as the listAllJobs action
func (r *Router) listJobs(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	filter := models.JobFilter{
		TripID:   q.Get("tripId"),
		TripDate: q.Get("tripDate"),
		From:     q.Get("from"),
		To:       q.Get("to"),
	}
	for _, d := range []string{filter.TripDate, filter.From, filter.To} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(store.DateLayout, d); err != nil {
			respondError(w, http.StatusBadRequest, "dates must be yyyy-MM-dd")
			return
		}
	}

	list, err := r.deps.Jobs.ListAllJobs(req.Context(), filter)
	if err != nil {
		r.log.Error("listing jobs failed", zap.Error(err))
		respondError(w, statusFor(err), apperr.Message(err))
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (r *Router) serveWs(w http.ResponseWriter, req *http.Request) {
	websocket.ServeWs(r.deps.Hub, r.deps.Bridge, w, req)
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindRemote:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
