package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/clawinfra/stakeclaw/internal/chains"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newNode serves eth_blockNumber and eth_chainId for chainIDHex.
func newNode(t *testing.T, chainIDHex string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64 `json:"id"`
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		result := map[string]string{"eth_blockNumber": `"0x1b4"`, "eth_chainId": `"` + chainIDHex + `"`}[req.Method]
		if result == "" {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func asWS(httpURL string) string { return "ws" + strings.TrimPrefix(httpURL, "http") }

func TestHTTPURL(t *testing.T) {
	tests := map[string]string{
		"wss://rpc.darwinia.network": "https://rpc.darwinia.network",
		"ws://127.0.0.1:9944":        "http://127.0.0.1:9944",
		"https://already.http":       "https://already.http",
	}
	for in, want := range tests {
		if got := HTTPURL(in); got != want {
			t.Errorf("HTTPURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCheckChain(t *testing.T) {
	good := newNode(t, "0x2c")
	wrong := newNode(t, "0x2e")
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	cfg := chains.ChainConfig{
		ChainID: 44,
		Name:    "Crab",
		RPC: []chains.Endpoint{
			{Name: "good", URL: asWS(good.URL)},
			{Name: "wrong", URL: wrong.URL},
			{Name: "dead", URL: deadURL},
		},
	}

	report := NewChecker(2*time.Second, newTestLogger()).CheckChain(context.Background(), cfg)
	if len(report.Endpoints) != 3 {
		t.Fatalf("got %d endpoint results", len(report.Endpoints))
	}

	g := report.Endpoints[0]
	if !g.Reachable || !g.ChainIDMatch || g.BlockHeight != 436 || g.RemoteChainID != 44 || g.Error != "" {
		t.Errorf("good endpoint = %+v", g)
	}
	if g.URL != asWS(good.URL) {
		t.Errorf("result should keep the configured URL, got %s", g.URL)
	}

	w := report.Endpoints[1]
	if !w.Reachable || w.ChainIDMatch || w.RemoteChainID != 46 || !strings.Contains(w.Error, "mismatch") {
		t.Errorf("wrong-chain endpoint = %+v", w)
	}

	d := report.Endpoints[2]
	if d.Reachable || d.Error == "" {
		t.Errorf("dead endpoint = %+v", d)
	}

	if !report.Healthy() {
		t.Error("chain with one good endpoint should be healthy")
	}
}

func TestCheckAllKeepsOrder(t *testing.T) {
	crab := newNode(t, "0x2c")
	darwinia := newNode(t, "0x2e")
	cfgs := []chains.ChainConfig{
		{ChainID: 44, Name: "Crab", RPC: []chains.Endpoint{{Name: "a", URL: crab.URL}}},
		{ChainID: 46, Name: "Darwinia", RPC: []chains.Endpoint{{Name: "a", URL: darwinia.URL}}},
		{ChainID: 43, Name: "Pangolin"},
	}

	reports := NewChecker(2*time.Second, newTestLogger()).CheckAll(context.Background(), cfgs)
	if len(reports) != 3 {
		t.Fatalf("got %d reports", len(reports))
	}
	for i, want := range []uint64{44, 46, 43} {
		if reports[i].ChainID != want {
			t.Errorf("reports[%d].ChainID = %d, want %d", i, reports[i].ChainID, want)
		}
	}
	if !reports[0].Healthy() || !reports[1].Healthy() {
		t.Error("both live chains should be healthy")
	}
	if reports[2].Healthy() {
		t.Error("chain without endpoints cannot be healthy")
	}
}

func TestMonitorRunNow(t *testing.T) {
	node := newNode(t, "0x2e")
	list := func() []chains.ChainConfig {
		return []chains.ChainConfig{{ChainID: 46, Name: "Darwinia", RPC: []chains.Endpoint{{Name: "a", URL: node.URL}}}}
	}
	m, err := NewMonitor(NewChecker(2*time.Second, newTestLogger()), list, "@every 1h", 5*time.Second, newTestLogger())
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}

	if reports, _ := m.Latest(); reports != nil {
		t.Error("Latest should be nil before the first run")
	}
	m.RunNow(context.Background())
	reports, at := m.Latest()
	if len(reports) != 1 || !reports[0].Healthy() || at.IsZero() {
		t.Errorf("Latest = %+v at %v", reports, at)
	}

	m.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Stop(ctx)
}

func TestMonitorSetTimeout(t *testing.T) {
	node := newNode(t, "0x2e")
	list := func() []chains.ChainConfig {
		return []chains.ChainConfig{{ChainID: 46, Name: "Darwinia", RPC: []chains.Endpoint{{Name: "a", URL: node.URL}}}}
	}
	m, err := NewMonitor(NewChecker(2*time.Second, newTestLogger()), list, "@every 1h", 5*time.Second, newTestLogger())
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	m.SetTimeout(time.Nanosecond)
	if reports := m.RunNow(context.Background()); len(reports) != 1 || reports[0].Healthy() {
		t.Errorf("expired run reported healthy: %+v", reports)
	}
}

func TestMonitorRejectsBadSchedule(t *testing.T) {
	_, err := NewMonitor(NewChecker(time.Second, newTestLogger()), func() []chains.ChainConfig { return nil }, "every tuesday", time.Second, newTestLogger())
	if err == nil {
		t.Error("expected error for invalid schedule")
	}
}
