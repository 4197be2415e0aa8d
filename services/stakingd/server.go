package stakingd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"farmstake/core/types"
	"farmstake/native/staking"
	"farmstake/observability"
)

const maxBodyBytes = 1 << 16

// ServerConfig carries the HTTP collaborators of a Server.
type ServerConfig struct {
	Auth         *Authenticator
	Limiter      *RateLimiter
	AllowMint    bool
	// BindAccounts requires account operations to carry a token whose
	// subject is the account.
	BindAccounts bool
	Logger       *slog.Logger
}

// Server exposes the staking service over HTTP.
type Server struct {
	svc       *Service
	auth      *Authenticator
	limiter   *RateLimiter
	allowMint bool
	bindAccts bool
	metrics   *observability.StakingMetrics
	logger    *slog.Logger
	router    http.Handler
}

// NewServer builds the router.
func NewServer(svc *Service, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth := cfg.Auth
	if auth == nil {
		auth = NewAuthenticator(AuthConfig{}, logger)
	}
	srv := &Server{
		svc:       svc,
		auth:      auth,
		limiter:   cfg.Limiter,
		allowMint: cfg.AllowMint,
		bindAccts: cfg.BindAccounts,
		metrics:   observability.Staking(),
		logger:    logger,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the router wrapped with tracing.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "stakingd")
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		if s.limiter != nil {
			v1.Use(s.limiter.Middleware)
		}
		v1.Get("/pools", s.listPools)
		v1.Get("/pools/{pool}", s.getPool)
		v1.Get("/pools/{pool}/accounts/{account}", s.getPosition)
		v1.Group(func(acct chi.Router) {
			if s.bindAccts {
				acct.Use(s.auth.Middleware)
			}
			acct.Post("/pools/{pool}/stake", s.stake)
			acct.Post("/pools/{pool}/unstake", s.unstake)
			acct.Post("/pools/{pool}/claim", s.claim)
			acct.Post("/pools/{pool}/exit", s.exit)
			acct.Post("/assets/approval", s.setApproval)
		})

		v1.Get("/events", s.listEvents)
		v1.Get("/events/ws", s.streamEvents)

		v1.Get("/assets/{asset}/balances/{account}", s.getBalance)
		v1.With(s.auth.Middleware).Post("/assets/mint", s.mint)

		v1.Route("/admin", func(admin chi.Router) {
			admin.Use(s.auth.Middleware)
			admin.Post("/pools/{pool}/rewards", s.addReward)
			admin.Put("/pools/{pool}/duration", s.setDuration)
			admin.Post("/pools/{pool}/pause", s.pause)
			admin.Post("/pools/{pool}/unpause", s.unpause)
			admin.Post("/recover", s.recoverAsset)
		})
	})
	return r
}

// observe assigns a request id, records the route metric and logs the outcome.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		s.metrics.ObserveRequest(route, rec.status)
		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "request",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (s *statusRecorder) Flush() {
	if flusher, ok := s.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func poolParam(r *http.Request) (staking.PoolID, error) {
	id, err := staking.ParsePoolID(chi.URLParam(r, "pool"))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return id, nil
}

func parseAccount(field, raw string) ([20]byte, error) {
	addr, err := staking.ParseAccount(raw)
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: %s: %v", errBadRequest, field, err)
	}
	return addr, nil
}

// parseAmount reads a decimal quantity. Zero is passed through so the engine
// reports it with its own error.
// checkOwner enforces that the verified token subject is account when
// account binding is on.
func (s *Server) checkOwner(r *http.Request, account [20]byte) error {
	if !s.bindAccts {
		return nil
	}
	subject, err := staking.ParseAccount(authorizationFrom(r.Context()).Subject)
	if err != nil || subject != account {
		return fmt.Errorf("%w: %s", errAccountMismatch, staking.HexAddr(account))
	}
	return nil
}

func parseAmount(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: amount required", errBadRequest)
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q: %v", errBadRequest, raw, err)
	}
	return amount, nil
}

func (s *Server) listPools(w http.ResponseWriter, r *http.Request) {
	views, err := s.svc.Pools()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]poolResponse, 0, len(views))
	for _, view := range views {
		out = append(out, newPoolResponse(view))
	}
	writeJSON(w, http.StatusOK, map[string]any{"pools": out})
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	id, err := poolParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := s.svc.Pool(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPoolResponse(view))
}

func (s *Server) getPosition(w http.ResponseWriter, r *http.Request) {
	id, err := poolParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	account, err := parseAccount("account", chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := s.svc.Position(id, account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPositionResponse(view))
}

type stakeRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

func (s *Server) stakeInput(r *http.Request, needAmount bool) (staking.PoolID, [20]byte, *uint256.Int, error) {
	id, err := poolParam(r)
	if err != nil {
		return 0, [20]byte{}, nil, err
	}
	var req stakeRequest
	if err := decodeBody(r, &req); err != nil {
		return 0, [20]byte{}, nil, err
	}
	account, err := parseAccount("account", req.Account)
	if err != nil {
		return 0, [20]byte{}, nil, err
	}
	if err := s.checkOwner(r, account); err != nil {
		return 0, [20]byte{}, nil, err
	}
	if !needAmount {
		return id, account, nil, nil
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return 0, [20]byte{}, nil, err
	}
	return id, account, amount, nil
}

func (s *Server) respondPosition(w http.ResponseWriter, id staking.PoolID, account [20]byte) {
	view, err := s.svc.Position(id, account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPositionResponse(view))
}

func (s *Server) stake(w http.ResponseWriter, r *http.Request) {
	id, account, amount, err := s.stakeInput(r, true)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.svc.Stake(account, id, amount); err != nil {
		writeError(w, err)
		return
	}
	s.respondPosition(w, id, account)
}

func (s *Server) unstake(w http.ResponseWriter, r *http.Request) {
	id, account, amount, err := s.stakeInput(r, true)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.svc.Unstake(account, id, amount); err != nil {
		writeError(w, err)
		return
	}
	s.respondPosition(w, id, account)
}

func (s *Server) claim(w http.ResponseWriter, r *http.Request) {
	id, account, _, err := s.stakeInput(r, false)
	if err != nil {
		writeError(w, err)
		return
	}
	paid, err := s.svc.Claim(account, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{Pool: id.String(), Account: staking.HexAddr(account), Claimed: decimalString(paid)})
}

func (s *Server) exit(w http.ResponseWriter, r *http.Request) {
	id, account, _, err := s.stakeInput(r, false)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.svc.Exit(account, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exitResponse{
		Pool:     id.String(),
		Account:  staking.HexAddr(account),
		Claimed:  decimalString(res.Claimed),
		Unstaked: decimalString(res.Unstaked),
	})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := EventFilter{
		Type:    q.Get("type"),
		Pool:    q.Get("pool"),
		Account: q.Get("account"),
	}
	if raw := strings.TrimSpace(q.Get("after")); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, fmt.Errorf("%w: after: %v", errBadRequest, err))
			return
		}
		filter.After = after
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, fmt.Errorf("%w: limit %q", errBadRequest, raw))
			return
		}
		filter.Limit = limit
	}
	recs, err := s.svc.Events(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	next := filter.After
	if len(recs) > 0 {
		next = recs[len(recs)-1].Sequence
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: recs, Next: next})
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	// Class ids contain a slash and arrive escaped.
	asset, err := url.PathUnescape(chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: asset: %v", errBadRequest, err))
		return
	}
	asset = types.NormalizeAssetID(asset)
	account, err := parseAccount("account", chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, err)
		return
	}
	balance, err := s.svc.Balance(asset, account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Asset: asset, Account: staking.HexAddr(account), Balance: decimalString(balance)})
}

type approvalRequest struct {
	Owner    string `json:"owner"`
	Operator string `json:"operator,omitempty"`
	Approved *bool  `json:"approved,omitempty"`
}

func (s *Server) setApproval(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	owner, err := parseAccount("owner", req.Owner)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.checkOwner(r, owner); err != nil {
		writeError(w, err)
		return
	}
	operator := s.svc.ModuleAccount()
	if strings.TrimSpace(req.Operator) != "" {
		if operator, err = parseAccount("operator", req.Operator); err != nil {
			writeError(w, err)
			return
		}
	}
	approved := true
	if req.Approved != nil {
		approved = *req.Approved
	}
	if err := s.svc.SetApproval(owner, operator, approved); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":    staking.HexAddr(owner),
		"operator": staking.HexAddr(operator),
		"approved": approved,
	})
}

type mintRequest struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) mint(w http.ResponseWriter, r *http.Request) {
	if !s.allowMint {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "minting disabled", Code: "mint_disabled"})
		return
	}
	var req mintRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	to, err := parseAccount("to", req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	balance, err := s.svc.Mint(req.Asset, to, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	s.logger.Info("asset minted",
		slog.String("subject", authorizationFrom(r.Context()).Subject),
		slog.String("asset", types.NormalizeAssetID(req.Asset)),
		slog.String("account", staking.HexAddr(to)))
	writeJSON(w, http.StatusOK, balanceResponse{Asset: types.NormalizeAssetID(req.Asset), Account: staking.HexAddr(to), Balance: decimalString(balance)})
}
