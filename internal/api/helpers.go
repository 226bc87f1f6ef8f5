package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/clawinfra/stakeclaw/internal/chains"
	"github.com/clawinfra/stakeclaw/internal/contracts"
	"github.com/clawinfra/stakeclaw/internal/orchestrator"
	"github.com/clawinfra/stakeclaw/internal/session"
	"github.com/clawinfra/stakeclaw/internal/staking"
	"github.com/clawinfra/stakeclaw/internal/transport"
)

const maxBodyBytes = 64 << 10

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encode failure has nowhere to go.
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondErr maps err to a status. 5xx details are logged, not returned.
func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status < http.StatusInternalServerError {
		writeError(w, status, err.Error())
		return
	}
	s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	switch status {
	case http.StatusBadGateway:
		writeError(w, status, "upstream node error")
	default:
		writeError(w, status, "internal error")
	}
}

func statusFor(err error) int {
	var abiErr *contracts.AbiResolutionError
	switch {
	case errors.Is(err, chains.ErrUnknownChain):
		return http.StatusNotFound
	case errors.Is(err, staking.ErrInvalidArgument),
		errors.Is(err, contracts.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotConnected),
		errors.Is(err, session.ErrNoIndexer),
		errors.Is(err, session.ErrSuperseded),
		errors.Is(err, orchestrator.ErrNoSecondary):
		return http.StatusConflict
	case errors.As(err, &abiErr):
		return http.StatusInternalServerError
	case errors.Is(err, transport.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads a bounded JSON body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", staking.ErrInvalidArgument, err)
	}
	return nil
}

// parseInt parses a base-10 integer amount in smallest units. Empty is nil.
func parseInt(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s: not an integer: %q", staking.ErrInvalidArgument, field, s)
	}
	return v, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
