// Package api exposes a ledger bank and the vault program over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/MBenz12/vault-x/internal/client"
	"github.com/MBenz12/vault-x/internal/ledger"
	"github.com/MBenz12/vault-x/internal/metrics"
	"github.com/MBenz12/vault-x/internal/vaulterr"
)

type Server struct {
	bank    *ledger.Bank
	client  *client.Client
	metrics *metrics.Metrics
	log     *zap.Logger
	router  *mux.Router
}

// NewServer wires the routes. c must read from bank, normally through a
// client.BankSource.
func NewServer(bank *ledger.Bank, c *client.Client, m *metrics.Metrics, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{bank: bank, client: c, metrics: m, log: log, router: mux.NewRouter()}

	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	s.router.HandleFunc("/tx", s.submitTransaction).Methods(http.MethodPost)
	s.router.HandleFunc("/airdrop", s.airdrop).Methods(http.MethodPost)
	s.router.HandleFunc("/receipts", s.receipts).Methods(http.MethodGet)
	s.router.HandleFunc("/accounts/{pubkey}", s.account).Methods(http.MethodGet)
	s.router.HandleFunc("/config", s.vaultConfig).Methods(http.MethodGet)
	s.router.HandleFunc("/vaults/{pubkey}", s.vault).Methods(http.MethodGet)
	s.router.HandleFunc("/vaults/{pubkey}/transactions", s.transactions).Methods(http.MethodGet)
	s.router.HandleFunc("/messages/inspect", s.inspectMessage).Methods(http.MethodPost)
	if m != nil {
		s.router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}
	s.router.Use(s.logRequests)
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API server started", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)),
		)
	})
}

type errorResponse struct {
	Code  uint32   `json:"code,omitempty"`
	Name  string   `json:"name,omitempty"`
	Class string   `json:"class,omitempty"`
	Error string   `json:"error"`
	Logs  []string `json:"logs,omitempty"`
}

// statusFor maps an error to the HTTP status a caller should act on.
func statusFor(err error) int {
	if class, ok := vaulterr.ClassOf(err); ok {
		switch class {
		case vaulterr.Structural:
			return http.StatusBadRequest
		case vaulterr.Authorization:
			return http.StatusForbidden
		case vaulterr.State:
			return http.StatusConflict
		case vaulterr.Resource:
			return http.StatusUnprocessableEntity
		}
	}
	switch {
	case errors.Is(err, client.ErrAccountNotFound), errors.Is(err, ledger.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrMissingSignature):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrInsufficientLamports), errors.Is(err, ledger.ErrRentNotMet), errors.Is(err, ledger.ErrLamportOverflow):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error, logs []string) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error(), Logs: logs}
	if e, ok := vaulterr.As(err); ok {
		resp.Code = e.Code
		resp.Name = e.Name
		resp.Class = e.Class.String()
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, resp)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}
