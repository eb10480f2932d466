// ABOUTME: HTTP listener for the OAuth authorization redirect
// ABOUTME: Exchanges the grant code and forwards the outcome onto the handoff queue

package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/calgate/calgate/internal/handoff"
)

// closePage is the whole response body; the authorization tab closes itself.
const closePage = `<!DOCTYPE html>
<html><head><script>window.close()</script></head>
<body>Authorization received. You can close this window.</body></html>`

// Exchanger swaps an authorization grant code for a credential blob.
type Exchanger interface {
	Exchange(ctx context.Context, code string) ([]byte, error)
}

// Producer is the handoff queue surface the receiver needs.
type Producer interface {
	Granted(token string, credential []byte)
	Denied(token string)
}

// Server receives the provider's authorization redirect. Every request ends
// with the same close-window page; the interesting part is which outcome, if
// any, lands on the handoff queue.
type Server struct {
	httpServer *http.Server
	exchanger  Exchanger
	queue      Producer
	logger     *slog.Logger
}

// New builds the callback server listening on addr.
func New(addr string, exchanger Exchanger, queue Producer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		exchanger: exchanger,
		queue:     queue,
		logger:    logger.With("component", "callback"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2callback", s.handleCallback)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops. A closed server returns nil.
func (s *Server) ListenAndServe() error {
	s.logger.Info("callback server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	state := query.Get("state")
	if state == "" {
		http.Error(w, "missing state", http.StatusBadRequest)
		return
	}

	if errCode := query.Get("error"); errCode != "" {
		s.logger.Warn("authorization declined", "error", errCode)
		s.queue.Denied(state)
		s.servePage(w)
		return
	}

	blob, err := s.exchanger.Exchange(r.Context(), query.Get("code"))
	if err != nil {
		// The chat still hears a denial instead of silence when the grant
		// code turns out stale or reused.
		s.logger.Warn("grant code exchange failed", "error", err)
		s.queue.Denied(state)
		s.servePage(w)
		return
	}

	s.queue.Granted(state, blob)
	s.logger.Info("authorization granted")
	s.servePage(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

func (s *Server) servePage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, closePage)
}

var _ Producer = (*handoff.Queue)(nil)
