// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

// Package observability provides HTTP endpoints for metrics and health checks.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker returns whether the service is ready to accept requests.
type ReadinessChecker func() bool

// Metrics holds the Tourbook Prometheus collectors. It satisfies
// auth.Recorder.
type Metrics struct {
	LoginAttempts      *prometheus.CounterVec
	AccountLockouts    prometheus.Counter
	PasswordResets     *prometheus.CounterVec
	SessionValidations *prometheus.CounterVec
	DeliveryFailures   *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
}

// NewMetrics creates the Tourbook collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tourbook_login_attempts_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		AccountLockouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tourbook_account_lockouts_total",
				Help: "Total number of accounts locked after repeated login failures",
			},
		),
		PasswordResets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tourbook_password_resets_total",
				Help: "Total number of password reset events by stage",
			},
			[]string{"stage"},
		),
		SessionValidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tourbook_session_validations_total",
				Help: "Total number of session validations by outcome",
			},
			[]string{"outcome"},
		),
		DeliveryFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tourbook_mail_delivery_failures_total",
				Help: "Total number of account mails the mailer rejected, by kind",
			},
			[]string{"kind"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tourbook_http_requests_total",
				Help: "Total number of API requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
	}

	reg.MustRegister(
		m.LoginAttempts,
		m.AccountLockouts,
		m.PasswordResets,
		m.SessionValidations,
		m.DeliveryFailures,
		m.HTTPRequests,
	)

	return m
}

// LoginAttempt counts a login by outcome.
func (m *Metrics) LoginAttempt(outcome string) { m.LoginAttempts.WithLabelValues(outcome).Inc() }

// AccountLocked counts a lockout.
func (m *Metrics) AccountLocked() { m.AccountLockouts.Inc() }

// PasswordReset counts a reset event by stage.
func (m *Metrics) PasswordReset(stage string) { m.PasswordResets.WithLabelValues(stage).Inc() }

// SessionValidation counts a session check by outcome.
func (m *Metrics) SessionValidation(outcome string) {
	m.SessionValidations.WithLabelValues(outcome).Inc()
}

// DeliveryFailure counts a mail the mailer rejected.
func (m *Metrics) DeliveryFailure(kind string) { m.DeliveryFailures.WithLabelValues(kind).Inc() }

// HTTPRequest counts a served API request.
func (m *Metrics) HTTPRequest(method, route string, status int) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Server provides HTTP endpoints for observability (metrics and health probes).
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	logger     *slog.Logger
	running    atomic.Bool
}

// NewServer creates a new observability server.
// addr is a "host:port" listen address; port 0 picks a free port.
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	// Private registry so tests can run servers side by side.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  readinessChecker,
		logger:   slog.Default(),
	}
}

// SetLogger replaces the logger used for lifecycle messages.
func (s *Server) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Metrics returns the collectors for recording application events.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving observability endpoints.
// The returned channel receives a serve error, if any, and is closed when
// the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("OBSERVABILITY_RUNNING").Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the observability server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	s.logger.Info("observability server stopped")
	return nil
}

// Addr returns the address the server is listening on, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // client may disconnect
	w.Write([]byte("ok\n"))
}

// handleReadiness returns 503 until the readiness checker reports true.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // client may disconnect
		w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // client may disconnect
	w.Write([]byte("not ready\n"))
}
