package stakingd

import (
	"log/slog"
	"net/http"
	"strings"

	"farmstake/native/staking"
)

type fundRequest struct {
	Funder string `json:"funder"`
	Amount string `json:"amount"`
}

type durationRequest struct {
	Duration uint64 `json:"duration"`
}

type recoverRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	To     string `json:"to"`
}

func (s *Server) auditAdmin(r *http.Request, operation string, attrs ...slog.Attr) {
	auth := authorizationFrom(r.Context())
	args := []any{slog.String("operation", operation), slog.String("subject", auth.Subject)}
	for _, attr := range attrs {
		args = append(args, attr)
	}
	s.logger.Info("admin operation", args...)
}

func (s *Server) respondPool(w http.ResponseWriter, id staking.PoolID) {
	view, err := s.svc.Pool(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPoolResponse(view))
}

func (s *Server) addReward(w http.ResponseWriter, r *http.Request) {
	id, err := poolParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req fundRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	funder, err := parseAccount("funder", req.Funder)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.svc.AddReward(authorizationFrom(r.Context()), funder, id, amount); err != nil {
		writeError(w, err)
		return
	}
	s.auditAdmin(r, "add_reward", slog.String("pool", id.String()), slog.String("account", staking.HexAddr(funder)))
	s.respondPool(w, id)
}

func (s *Server) setDuration(w http.ResponseWriter, r *http.Request) {
	id, err := poolParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req durationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.svc.SetRewardDuration(authorizationFrom(r.Context()), id, req.Duration); err != nil {
		writeError(w, err)
		return
	}
	s.auditAdmin(r, "set_duration", slog.String("pool", id.String()))
	s.respondPool(w, id)
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request)   { s.togglePause(w, r, true) }
func (s *Server) unpause(w http.ResponseWriter, r *http.Request) { s.togglePause(w, r, false) }

func (s *Server) togglePause(w http.ResponseWriter, r *http.Request, paused bool) {
	id, err := poolParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.svc.SetPaused(authorizationFrom(r.Context()), id, paused); err != nil {
		writeError(w, err)
		return
	}
	op := "unpause"
	if paused {
		op = "pause"
	}
	s.auditAdmin(r, op, slog.String("pool", id.String()))
	s.respondPool(w, id)
}

func (s *Server) recoverAsset(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
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
	asset := strings.TrimSpace(req.Asset)
	if err := s.svc.Recover(authorizationFrom(r.Context()), asset, amount, to); err != nil {
		writeError(w, err)
		return
	}
	s.auditAdmin(r, "recover", slog.String("account", staking.HexAddr(to)))
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":  asset,
		"to":     staking.HexAddr(to),
		"amount": amount.Dec(),
	})
}
