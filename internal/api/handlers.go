package api

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/clawinfra/stakeclaw/internal/chains"
	"github.com/clawinfra/stakeclaw/internal/health"
	"github.com/clawinfra/stakeclaw/internal/prefs"
	"github.com/clawinfra/stakeclaw/internal/security"
	"github.com/clawinfra/stakeclaw/internal/session"
	"github.com/clawinfra/stakeclaw/internal/staking"
)

type sessionResponse struct {
	session.Snapshot
	Chain *chains.ChainConfig `json:"chain,omitempty"`
}

// MarshalJSON merges the snapshot fields with the chain config, since the
// embedded Snapshot's own MarshalJSON would otherwise win.
func (r sessionResponse) MarshalJSON() ([]byte, error) {
	snap, err := json.Marshal(r.Snapshot)
	if err != nil {
		return nil, err
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(snap, &out); err != nil {
		return nil, err
	}
	if r.Chain != nil {
		chain, err := json.Marshal(r.Chain)
		if err != nil {
			return nil, err
		}
		out["chain"] = chain
	}
	return json.Marshal(out)
}

func (s *Server) sessionView() sessionResponse {
	resp := sessionResponse{Snapshot: s.orch.State()}
	if cfg, ok := s.orch.ActiveChain(); ok {
		resp.Chain = &cfg
	}
	return resp
}

// handleStatus returns system status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.orch.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"version":     s.version,
		"uptime":      time.Since(s.startedAt).Round(time.Second).String(),
		"chains":      len(s.orch.Chains()),
		"state":       snap.State,
		"activeChain": snap.ChainID,
	})
}

func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Chains())
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	cfg, err := s.orch.Chain(id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessionView())
}

func (s *Server) handleSelectChain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChainID uint64 `json:"chainId"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if req.ChainID == 0 {
		writeError(w, http.StatusBadRequest, "chainId is required")
		return
	}
	by := "anonymous"
	if c, ok := security.ClaimsFrom(r.Context()); ok {
		by = c.Subject
	}
	s.logger.Info("chain selection requested", "chain", req.ChainID, "by", by)
	if _, err := s.orch.SelectChain(r.Context(), req.ChainID); err != nil {
		s.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Disconnect(); err != nil {
		// Already Idle; a close error only matters to the log.
		s.logger.Warn("disconnect close error", "error", err)
	}
	writeJSON(w, http.StatusOK, s.sessionView())
}

type accountResponse struct {
	Address     string   `json:"address"`
	StakedRing  string   `json:"stakedRing"`
	StakedKton  string   `json:"stakedKton"`
	Power       string   `json:"power"`
	Deposits    []string `json:"deposits"`
	KtonBalance string   `json:"ktonBalance,omitempty"`
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.orch.Account(r.Context(), r.PathValue("address"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	resp := accountResponse{
		Address:     acct.Address,
		StakedRing:  bigString(acct.StakedRing),
		StakedKton:  bigString(acct.StakedKton),
		Power:       bigString(acct.Power),
		Deposits:    make([]string, 0, len(acct.Deposits)),
		KtonBalance: bigString(acct.KtonBalance),
	}
	for _, d := range acct.Deposits {
		resp.Deposits = append(resp.Deposits, d.String())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCalcPower(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ring     string `json:"ring"`
		Kton     string `json:"kton"`
		RingPool string `json:"ringPool"`
		KtonPool string `json:"ktonPool"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}

	var vals [4]*big.Int
	for i, f := range []struct{ name, raw string }{
		{"ring", req.Ring}, {"kton", req.Kton}, {"ringPool", req.RingPool}, {"ktonPool", req.KtonPool},
	} {
		v, err := parseInt(f.name, f.raw)
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		vals[i] = v
	}

	power, err := s.orch.StakingToPower(vals[0], vals[1], vals[2], vals[3])
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"power": power.String()})
}

func (s *Server) handleCalcReward(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Deposit string `json:"deposit"`
		Months  int    `json:"months"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	deposit, err := parseInt("deposit", req.Deposit)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	reward, err := s.orch.CalcKtonReward(deposit, req.Months)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	formatted, err := s.orch.FormatBalance(reward, 18, staking.FormatOptions{Precision: staking.DefaultPrecision})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"reward":    reward.String(),
		"formatted": formatted,
	})
}

func (s *Server) handleCalcFormat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value     string `json:"value"`
		Decimals  *int   `json:"decimals"`
		Precision *int   `json:"precision"`
		KeepZero  bool   `json:"keepZero"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	value, err := parseInt("value", req.Value)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	decimals := 18
	if req.Decimals != nil {
		decimals = *req.Decimals
	} else if cfg, ok := s.orch.ActiveChain(); ok {
		decimals = cfg.Native.Decimals
	}
	opts := staking.FormatOptions{Precision: staking.DefaultPrecision, KeepZero: req.KeepZero}
	if req.Precision != nil {
		opts.Precision = *req.Precision
	}

	parts, err := s.orch.FormatBalanceParts(value, decimals, opts)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"formatted": parts.String(),
		"integer":   parts.Integer,
		"decimal":   parts.Decimal,
	})
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Preferences().All(r.Context()))
}

func (s *Server) handleSetPreference(w http.ResponseWriter, r *http.Request) {
	key := prefs.Key(r.PathValue("key"))
	if !key.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown preference key %q", key))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil || !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "body must be a JSON value")
		return
	}
	s.orch.Preferences().Set(r.Context(), key, json.RawMessage(body))
	writeJSON(w, http.StatusOK, s.orch.Preferences().All(r.Context()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeError(w, http.StatusServiceUnavailable, "health monitor disabled")
		return
	}
	reports, at := s.health.Latest()
	if reports == nil {
		reports = []health.ChainReport{}
	}
	resp := map[string]any{"chains": reports}
	if !at.IsZero() {
		resp["checkedAt"] = at
	}
	writeJSON(w, http.StatusOK, resp)
}
