package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServiceRoutes serves the unprefixed index and health endpoints.
type ServiceRoutes struct {
	name    string
	version string
	docPath string
	store   Pinger
}

// NewServiceRoutes describes the service on the index page. /health pings
// store and reports 503 while it is unreachable.
func NewServiceRoutes(name, version, docPath string, store Pinger) *ServiceRoutes {
	return &ServiceRoutes{name: name, version: version, docPath: docPath, store: store}
}

// Register adds GET / and GET /health.
func (s *ServiceRoutes) Register(router *Router) error {
	prefix := router.Prefix()

	if err := router.Handle(Route{Method: http.MethodGet, Path: "/", Summary: "Service information"},
		func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, indexResponse{
				Name:       s.name,
				Version:    s.version,
				Docs:       absoluteURL(r, s.docPath),
				Promotions: absoluteURL(r, prefix+"/promotions"),
			})
		}); err != nil {
		return err
	}

	return router.Handle(Route{Method: http.MethodGet, Path: "/health", Summary: "Readiness check"},
		func(w http.ResponseWriter, r *http.Request) {
			if s.store != nil {
				ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
				defer cancel()
				if err := s.store.Ping(ctx); err != nil {
					writeError(w, http.StatusServiceUnavailable, "database unavailable: "+err.Error())
					return
				}
			}
			writeJSON(w, http.StatusOK, messageResponse{Message: "OK"})
		})
}

type indexResponse struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Docs       string `json:"docs"`
	Promotions string `json:"promotions"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{
		Status:  status,
		Error:   http.StatusText(status),
		Message: message,
	})
}

// absoluteURL builds an external URL for path on the host the request was
// addressed to.
func absoluteURL(r *http.Request, path string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded == "http" || forwarded == "https" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host + path
}
