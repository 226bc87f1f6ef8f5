package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/clawinfra/stakeclaw/internal/orchestrator"
	"github.com/clawinfra/stakeclaw/internal/staking"
)

// ConnectCommand handles 'stakeclaw connect <chain-id>'. It opens a session,
// optionally reads an account's staking position, and closes again. A
// successful connect is remembered as the selected network.
func ConnectCommand(args []string, configPath string) int {
	positional, flags := splitArgs(args, nil)
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	account := fs.String("account", "", "Account address to read (0x...)")
	precision := fs.Int("precision", staking.DefaultPrecision, "Fractional digits to show")
	if err := fs.Parse(flags); err != nil {
		return 1
	}
	if len(positional) != 1 {
		fmt.Fprintln(stderr, "Usage: stakeclaw connect <chain-id> [--account 0x...]")
		return 1
	}
	id, err := parseChainID(positional[0])
	if err != nil {
		return errorf("%v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return errorf("loading config: %v", err)
	}
	cfg.API.Enabled = false
	cfg.Health.Enabled = false

	app, err := NewApp(cfg, getLogger(), "")
	if err != nil {
		return errorf("%v", err)
	}
	defer app.Close(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	snap, err := app.Orchestrator.SelectChain(ctx, id)
	if err != nil {
		return errorf("connect to chain %d: %v", id, err)
	}
	chain, _ := app.Orchestrator.ActiveChain()
	fmt.Fprintf(stdout, "Connected to %s (chain %d) via %s\n", chain.Name, chain.ChainID, snap.Endpoint)
	fmt.Fprintf(stdout, "  Session: %s\n", snap.SessionID)

	if *account == "" {
		return 0
	}
	acct, err := app.Orchestrator.Account(ctx, *account)
	if err != nil {
		return errorf("read account: %v", err)
	}
	return printAccount(app.Orchestrator, acct, staking.FormatOptions{Precision: *precision})
}

func printAccount(o *orchestrator.Orchestrator, acct orchestrator.Account, opts staking.FormatOptions) int {
	chain, _ := o.ActiveChain()

	ring, err := o.FormatNative(acct.StakedRing, opts)
	if err != nil {
		return errorf("%v", err)
	}
	fmt.Fprintf(stdout, "\nAccount %s\n", acct.Address)
	fmt.Fprintf(stdout, "  Staked %-6s %s\n", chain.Native.Symbol, ring)
	if chain.Secondary != nil {
		kton, err := o.FormatSecondary(acct.StakedKton, opts)
		if err != nil {
			return errorf("%v", err)
		}
		fmt.Fprintf(stdout, "  Staked %-6s %s\n", chain.Secondary.Symbol, kton)
		if acct.KtonBalance != nil {
			bal, err := o.FormatSecondary(acct.KtonBalance, opts)
			if err != nil {
				return errorf("%v", err)
			}
			fmt.Fprintf(stdout, "  %-13s %s\n", chain.Secondary.Symbol+" balance", bal)
		}
	}
	fmt.Fprintf(stdout, "  Power         %s\n", acct.Power)
	if len(acct.Deposits) > 0 {
		fmt.Fprintf(stdout, "  Deposits      %d\n", len(acct.Deposits))
	}
	return 0
}
