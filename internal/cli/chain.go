package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/clawinfra/stakeclaw/internal/chains"
	"github.com/clawinfra/stakeclaw/internal/health"
)

// ChainCommand handles the 'stakeclaw chain' subcommands
func ChainCommand(args []string, configPath string) int {
	if len(args) == 0 {
		printChainHelp()
		return 1
	}

	subCmd := args[0]
	switch subCmd {
	case "list":
		return chainList(args[1:], configPath)
	case "show":
		return chainShow(args[1:], configPath)
	case "health":
		return chainHealth(args[1:], configPath)
	case "help", "--help", "-h":
		printChainHelp()
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown chain subcommand: %s\n", subCmd)
		printChainHelp()
		return 1
	}
}

func printChainHelp() {
	fmt.Fprintln(stdout, `Usage: stakeclaw chain <subcommand> [options]

Inspect the supported staking chains.

Subcommands:
  list [--all]        List selectable chains (--all includes disabled ones)
  show <chain-id>     Show one chain's endpoints, tokens and contracts
  health [chain-id]   Probe RPC endpoints for reachability and chain id

Examples:
  stakeclaw chain list
  stakeclaw chain show 46 --json
  stakeclaw chain health 44`)
}

func loadChains(configPath string) (*chains.Registry, int) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, errorf("loading config: %v", err)
	}
	reg, err := LoadRegistry(cfg)
	if err != nil {
		return nil, errorf("loading chains: %v", err)
	}
	return reg, 0
}

func chainList(args []string, configPath string) int {
	fs := flag.NewFlagSet("chain list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	all := fs.Bool("all", false, "Include disabled chains")
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	reg, code := loadChains(configPath)
	if reg == nil {
		return code
	}
	list := reg.List()
	if *all {
		list = reg.All()
	}

	if *asJSON {
		return printJSON(list)
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tNATIVE\tSECONDARY\tRPC\tSTATUS")
	for _, c := range list {
		secondary := "-"
		if c.Secondary != nil {
			secondary = c.Secondary.Symbol
		}
		status := "enabled"
		switch {
		case c.Disabled:
			status = "disabled"
		case c.TestNet:
			status = "testnet"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n", c.ChainID, c.Name, c.Native.Symbol, secondary, len(c.RPC), status)
	}
	_ = w.Flush()
	return 0
}

func chainShow(args []string, configPath string) int {
	positional, flags := splitArgs(args, map[string]bool{"json": true})
	fs := flag.NewFlagSet("chain show", flag.ContinueOnError)
	fs.SetOutput(stderr)
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(flags); err != nil {
		return 1
	}
	if len(positional) != 1 {
		fmt.Fprintln(stderr, "Usage: stakeclaw chain show <chain-id> [--json]")
		return 1
	}
	id, err := parseChainID(positional[0])
	if err != nil {
		return errorf("%v", err)
	}

	reg, code := loadChains(configPath)
	if reg == nil {
		return code
	}
	c, err := reg.Resolve(id)
	if err != nil {
		return errorf("%v", err)
	}
	if *asJSON {
		return printJSON(c)
	}

	fmt.Fprintf(stdout, "%s (chain %d)\n", c.Name, c.ChainID)
	fmt.Fprintf(stdout, "  Native:     %s (%d decimals)\n", c.Native.Symbol, c.Native.Decimals)
	if c.Secondary != nil {
		fmt.Fprintf(stdout, "  Secondary:  %s (%d decimals)\n", c.Secondary.Symbol, c.Secondary.Decimals)
	}
	fmt.Fprintf(stdout, "  Block time: %s\n", c.BlockTime())
	if c.Explorer != "" {
		fmt.Fprintf(stdout, "  Explorer:   %s\n", c.Explorer)
	}
	if c.Indexer != "" {
		fmt.Fprintf(stdout, "  Indexer:    %s\n", c.Indexer)
	}
	fmt.Fprintln(stdout, "  RPC:")
	for _, ep := range c.RPC {
		fmt.Fprintf(stdout, "    %-12s %s\n", ep.Name, ep.URL)
	}
	fmt.Fprintln(stdout, "  Contracts:")
	kinds := make([]string, 0, len(c.Contracts))
	for k := range c.Contracts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		ct := c.Contracts[chains.ContractKind(k)]
		fmt.Fprintf(stdout, "    %-8s %s (%s)\n", k, ct.Address, ct.ABI)
	}
	return 0
}

func chainHealth(args []string, configPath string) int {
	positional, flags := splitArgs(args, map[string]bool{"json": true})
	fs := flag.NewFlagSet("chain health", flag.ContinueOnError)
	fs.SetOutput(stderr)
	timeout := fs.Duration("timeout", 0, "Overall probe deadline (default: health.timeoutSec)")
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(flags); err != nil {
		return 1
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return errorf("loading config: %v", err)
	}
	reg, err := LoadRegistry(cfg)
	if err != nil {
		return errorf("loading chains: %v", err)
	}

	targets := reg.List()
	if len(positional) > 0 {
		id, err := parseChainID(positional[0])
		if err != nil {
			return errorf("%v", err)
		}
		c, err := reg.Resolve(id)
		if err != nil {
			return errorf("%v", err)
		}
		targets = []chains.ChainConfig{c}
	}

	deadline := cfg.HealthTimeout()
	if *timeout > 0 {
		deadline = *timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	checker := health.NewChecker(cfg.RequestTimeout(), getLogger())
	reports := checker.CheckAll(ctx, targets)

	if *asJSON {
		if code := printJSON(reports); code != 0 {
			return code
		}
	} else {
		printHealth(reports)
	}

	for _, r := range reports {
		if !r.Healthy() {
			return 2
		}
	}
	return 0
}

func printHealth(reports []health.ChainReport) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHAIN\tENDPOINT\tSTATUS\tBLOCK\tLATENCY\tDETAIL")
	for _, r := range reports {
		for _, e := range r.Endpoints {
			status := "down"
			if e.Reachable && e.ChainIDMatch {
				status = "ok"
			} else if e.Reachable {
				status = "mismatch"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				r.Name, e.Name, status, e.BlockHeight, e.Latency.Round(time.Millisecond), oneLine(e.Error))
		}
	}
	_ = w.Flush()
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 80 {
		return s[:77] + "..."
	}
	return s
}

func printJSON(v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errorf("encoding output: %v", err)
	}
	return 0
}
