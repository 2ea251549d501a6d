// Package healthz serves liveness and readiness endpoints for the bot
// daemons, matching the shape of kubernetes-sigs-prow's
// pkg/pjutil/health.go (/healthz, /healthz/ready) without depending on
// prow's own interrupts package.
package healthz

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// LivenessCheck reports whether the process is still making progress.
type LivenessCheck func() bool

// ReadinessCheck reports whether the process is ready to serve.
type ReadinessCheck func() bool

// Health serves /healthz and /healthz/ready on its own HTTP server.
type Health struct {
	mux    *http.ServeMux
	server *http.Server

	mu       sync.RWMutex
	liveness []LivenessCheck
}

// NewHealth starts a health server on port and returns a handle to
// register checks on it.
func NewHealth(port int) *Health {
	h := &Health{mux: http.NewServeMux()}
	h.mux.HandleFunc("/healthz", h.serveLive)
	h.server = &http.Server{Addr: ":" + strconv.Itoa(port), Handler: h.mux}
	go h.server.ListenAndServe()
	return h
}

// ServeLive replaces the set of liveness checks backing /healthz.
func (h *Health) ServeLive(checks ...LivenessCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append([]LivenessCheck(nil), checks...)
}

// ServeReady registers /healthz/ready, gated on every check passing.
func (h *Health) ServeReady(checks ...ReadinessCheck) {
	h.mux.HandleFunc("/healthz/ready", func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if !check() {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprint(w, "readiness check failed")
				return
			}
		}
		fmt.Fprint(w, "OK")
	})
}

func (h *Health) serveLive(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := append([]LivenessCheck(nil), h.liveness...)
	h.mu.RUnlock()
	for _, check := range checks {
		if !check() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "liveness check failed")
			return
		}
	}
	fmt.Fprint(w, "OK")
}

// Shutdown stops the health server.
func (h *Health) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.server.Shutdown(ctx)
}
