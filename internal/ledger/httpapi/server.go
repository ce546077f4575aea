// Package httpapi serves a ledger over HTTP and provides the matching
// ledger.Client. Transactions travel as cbor, everything else as JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ctoken/internal/address"
	"ctoken/internal/ledger"
	"ctoken/internal/metrics"
	"ctoken/internal/proof"
)

const (
	maxBodySize = 1 << 20
	cborType    = "application/cbor"
)

// Backend is a ledger that can also fund accounts out of thin air.
type Backend interface {
	ledger.Client
	Airdrop(ctx context.Context, addr address.Address, lamports uint64) (*ledger.Receipt, error)
}

type AnchorBody struct {
	Hash string `json:"hash"`
	Slot uint64 `json:"slot"`
}

type StatusBody struct {
	Status string `json:"status"`
}

// CircuitsBody lists the verifying key fingerprint of each range layout.
type CircuitsBody struct {
	Fingerprints map[proof.RangeLayout]string `json:"fingerprints"`
}

type AirdropRequest struct {
	Address  address.Address `json:"address"`
	Lamports uint64          `json:"lamports"`
}

// ErrorBody carries a failure. Rejection is set when the ledger refused a
// transaction.
type ErrorBody struct {
	Message   string          `json:"message"`
	Rejection *ledger.TxError `json:"rejection,omitempty"`
}

type Server struct {
	backend Backend
	logger  *zap.Logger
	limiter *clientLimiter
	health  *HealthChecker
	mux     *http.ServeMux

	circuits map[proof.RangeLayout]string
}

type ServerOption func(*Server)

// WithRateLimit allows limit requests per second per remote host, with burst.
func WithRateLimit(limit float64, burst int) ServerOption {
	return func(s *Server) {
		if limit > 0 {
			s.limiter = newClientLimiter(rate.Limit(limit), burst, 10*time.Minute)
		}
	}
}

func WithHealth(hc *HealthChecker) ServerOption {
	return func(s *Server) { s.health = hc }
}

// WithCircuits publishes the range key fingerprints the ledger verifies
// against, so provers can detect a foreign circuitDir before submitting.
func WithCircuits(fingerprints map[proof.RangeLayout]string) ServerOption {
	return func(s *Server) { s.circuits = fingerprints }
}

func NewServer(backend Backend, logger *zap.Logger, opts ...ServerOption) *Server {
	s := &Server{backend: backend, logger: logger.Named("httpapi"), mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(s)
	}
	if s.health == nil {
		s.health = NewHealthChecker("dev")
	}
	s.health.Register("ledger", func(ctx context.Context) error {
		_, err := backend.LatestAnchor(ctx)
		return err
	})

	s.mux.HandleFunc("POST /v1/transactions", s.submit)
	s.mux.HandleFunc("GET /v1/anchor", s.anchor)
	s.mux.HandleFunc("GET /v1/accounts/{address}", s.account)
	s.mux.HandleFunc("GET /v1/transactions/{id}", s.status)
	s.mux.HandleFunc("POST /v1/airdrop", s.airdrop)
	s.mux.HandleFunc("GET /health", s.healthz)
	if s.circuits != nil {
		s.mux.HandleFunc("GET /v1/circuits", s.circuitKeys)
	}
	return s
}

// Handler wraps the routes with rate limiting and request accounting.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		if s.limiter != nil && !s.limiter.allow(remoteHost(r), time.Now()) {
			metrics.RateLimited.Inc()
			writeError(rec, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
		} else {
			s.mux.ServeHTTP(rec, r)
		}
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "read body"))
		return
	}
	tx, err := ledger.DecodeTransaction(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	receipt, err := s.backend.SubmitAndConfirm(r.Context(), tx)
	if err != nil {
		s.fail(w, "submit", err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) anchor(w http.ResponseWriter, r *http.Request) {
	a, err := s.backend.LatestAnchor(r.Context())
	if err != nil {
		s.fail(w, "anchor", err)
		return
	}
	writeJSON(w, http.StatusOK, AnchorBody{Hash: base58.Encode(a.Hash[:]), Slot: a.Slot})
}

func (s *Server) account(w http.ResponseWriter, r *http.Request) {
	addr, err := address.Parse(r.PathValue("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	acct, err := s.backend.AccountState(r.Context(), addr)
	if err != nil {
		s.fail(w, "account", err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	anchor, err := ledger.ParseAnchor(r.URL.Query().Get("anchor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	st, err := s.backend.TransactionStatus(r.Context(), r.PathValue("id"), anchor)
	if err != nil {
		s.fail(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, StatusBody{Status: st.String()})
}

func (s *Server) airdrop(w http.ResponseWriter, r *http.Request) {
	var req AirdropRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode airdrop"))
		return
	}
	if req.Lamports == 0 {
		writeError(w, http.StatusBadRequest, errors.New("airdrop of zero lamports"))
		return
	}
	receipt, err := s.backend.Airdrop(r.Context(), req.Address, req.Lamports)
	if err != nil {
		s.fail(w, "airdrop", err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) circuitKeys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, CircuitsBody{Fingerprints: s.circuits})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	health := s.health.Check(ctx)
	code := http.StatusOK
	if health.Status != Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, health)
}

// fail maps backend errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, route string, err error) {
	var txErr *ledger.TxError
	switch {
	case errors.As(err, &txErr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorBody{Message: txErr.Error(), Rejection: txErr})
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		s.logger.Error("request failed", zap.String("route", route), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, ErrorBody{Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}
