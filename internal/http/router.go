package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const apiPrefix = "/followup/api/v1"

// Router standard library http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterFollowUpRoutes incidents, responses, completion, pending, export and health
func (r *Router) RegisterFollowUpRoutes(h *FollowUpHandler) {
	r.Handle(apiPrefix+"/incidents", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.CreateIncident(w, req)
	})

	// incidents/{id}, incidents/{id}/responses, incidents/{id}/complete
	r.Handle(apiPrefix+"/incidents/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.Trim(strings.TrimPrefix(req.URL.Path, apiPrefix+"/incidents/"), "/")
		parts := strings.Split(rest, "/")
		if rest == "" || len(parts) > 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		id := parts[0]

		action := ""
		if len(parts) == 2 {
			action = parts[1]
		}
		switch {
		case action == "" && req.Method == http.MethodGet:
			h.GetIncident(w, req, id)
		case action == "responses" && req.Method == http.MethodPost:
			h.RecordResponse(w, req, id)
		case action == "complete" && req.Method == http.MethodPost:
			h.Complete(w, req, id)
		case action == "" || action == "responses" || action == "complete":
			w.WriteHeader(http.StatusMethodNotAllowed)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	r.Handle(apiPrefix+"/pending", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.GetPending(w, req)
	})

	r.Handle(apiPrefix+"/export", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Export(w, req)
	})

	r.Handle("/health", h.Health)
}
