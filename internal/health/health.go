// Package health probes chain RPC endpoints. It never touches the active
// session: probes use their own short-lived HTTP handles.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"

	"github.com/clawinfra/stakeclaw/internal/chains"
	"github.com/clawinfra/stakeclaw/internal/transport"
)

// maxProbes bounds concurrent endpoint probes across a CheckAll.
const maxProbes = 8

// EndpointResult is the outcome of probing one RPC endpoint.
type EndpointResult struct {
	Name          string        `json:"name"`
	URL           string        `json:"url"`
	Reachable     bool          `json:"reachable"`
	BlockHeight   uint64        `json:"blockHeight,omitempty"`
	RemoteChainID uint64        `json:"remoteChainId,omitempty"`
	ChainIDMatch  bool          `json:"chainIdMatch"`
	Latency       time.Duration `json:"latencyNs"`
	Error         string        `json:"error,omitempty"`
}

// ChainReport collects the endpoint results of one chain.
type ChainReport struct {
	ChainID   uint64           `json:"chainId"`
	Name      string           `json:"name"`
	Endpoints []EndpointResult `json:"endpoints"`
	CheckedAt time.Time        `json:"checkedAt"`
}

// Healthy reports whether at least one endpoint answered with the
// configured chain id.
func (r ChainReport) Healthy() bool {
	for _, e := range r.Endpoints {
		if e.Reachable && e.ChainIDMatch {
			return true
		}
	}
	return false
}

// Caller is the subset of transport.HTTP the checker needs.
type Caller interface {
	Open(ctx context.Context, url string) (transport.Handle, error)
	Close(h transport.Handle) error
	Call(ctx context.Context, h transport.Handle, method string, params ...any) (json.RawMessage, error)
}

// Checker probes endpoints over HTTP JSON-RPC.
type Checker struct {
	rpc    Caller
	logger *slog.Logger
	now    func() time.Time
	sem    chan struct{}
}

// NewChecker returns a Checker whose probes time out after timeout.
func NewChecker(timeout time.Duration, logger *slog.Logger) *Checker {
	return NewCheckerWithCaller(transport.NewHTTP(timeout, logger), logger)
}

// NewCheckerWithCaller is NewChecker over a custom caller.
func NewCheckerWithCaller(rpc Caller, logger *slog.Logger) *Checker {
	return &Checker{
		rpc:    rpc,
		logger: logger.With("component", "health"),
		now:    time.Now,
		sem:    make(chan struct{}, maxProbes),
	}
}

// HTTPURL rewrites a ws/wss endpoint to its http/https twin. Nodes serve
// JSON-RPC over both on the same address.
func HTTPURL(rpc string) string {
	switch {
	case strings.HasPrefix(rpc, "wss://"):
		return "https://" + strings.TrimPrefix(rpc, "wss://")
	case strings.HasPrefix(rpc, "ws://"):
		return "http://" + strings.TrimPrefix(rpc, "ws://")
	default:
		return rpc
	}
}

// CheckChain probes every RPC endpoint of cfg concurrently.
func (c *Checker) CheckChain(ctx context.Context, cfg chains.ChainConfig) ChainReport {
	report := ChainReport{
		ChainID:   cfg.ChainID,
		Name:      cfg.Name,
		Endpoints: make([]EndpointResult, len(cfg.RPC)),
	}

	var g errgroup.Group
	for i, ep := range cfg.RPC {
		g.Go(func() error {
			c.sem <- struct{}{}
			defer func() { <-c.sem }()
			report.Endpoints[i] = c.probe(ctx, cfg.ChainID, ep)
			return nil
		})
	}
	_ = g.Wait()

	report.CheckedAt = c.now()
	c.logger.Debug("chain checked", "chain", cfg.ChainID, "healthy", report.Healthy())
	return report
}

// CheckAll probes every chain in cfgs. Reports keep the input order.
func (c *Checker) CheckAll(ctx context.Context, cfgs []chains.ChainConfig) []ChainReport {
	reports := make([]ChainReport, len(cfgs))
	var g errgroup.Group
	for i, cfg := range cfgs {
		g.Go(func() error {
			reports[i] = c.CheckChain(ctx, cfg)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

func (c *Checker) probe(ctx context.Context, chainID uint64, ep chains.Endpoint) EndpointResult {
	res := EndpointResult{Name: ep.Name, URL: ep.URL}
	url := HTTPURL(ep.URL)

	h, err := c.rpc.Open(ctx, url)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer c.rpc.Close(h)

	start := c.now()
	height, err := c.quantity(ctx, h, "eth_blockNumber")
	res.Latency = c.now().Sub(start)
	if err != nil {
		res.Error = err.Error()
		c.logger.Debug("endpoint unreachable", "chain", chainID, "url", url, "error", err)
		return res
	}
	res.Reachable = true
	res.BlockHeight = height

	remote, err := c.quantity(ctx, h, "eth_chainId")
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.RemoteChainID = remote
	res.ChainIDMatch = remote == chainID
	if !res.ChainIDMatch {
		res.Error = fmt.Sprintf("chain id mismatch: node reports %d, want %d", remote, chainID)
		c.logger.Warn("endpoint serves another chain", "chain", chainID, "url", url, "remote", remote)
	}
	return res
}

func (c *Checker) quantity(ctx context.Context, h transport.Handle, method string) (uint64, error) {
	raw, err := c.rpc.Call(ctx, h, method)
	if err != nil {
		return 0, err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("%s: decode result: %w", method, err)
	}
	v, err := hexutil.DecodeUint64(s)
	if err != nil {
		return 0, fmt.Errorf("%s: decode %q: %w", method, s, err)
	}
	return v, nil
}
