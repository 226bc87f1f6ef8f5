package cli

import (
	"flag"
	"fmt"
	"math/big"

	"github.com/clawinfra/stakeclaw/internal/staking"
)

// CalcCommand handles the 'stakeclaw calc' subcommands. They run offline.
func CalcCommand(args []string) int {
	if len(args) == 0 {
		printCalcHelp()
		return 1
	}

	switch args[0] {
	case "power":
		return calcPower(args[1:])
	case "reward":
		return calcReward(args[1:])
	case "format":
		return calcFormat(args[1:])
	case "help", "--help", "-h":
		printCalcHelp()
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown calc subcommand: %s\n", args[0])
		printCalcHelp()
		return 1
	}
}

func printCalcHelp() {
	fmt.Fprintln(stdout, `Usage: stakeclaw calc <subcommand> [options]

Staking arithmetic. Amounts are decimal token amounts (e.g. 1.5) unless
--units is given, in which case they are integers in smallest units.

Subcommands:
  power    Voting power of a stake against the pools
  reward   KTON granted for locking RING for N months
  format   Render a smallest-unit value as a token amount

Examples:
  stakeclaw calc power --ring 100 --kton 10 --ring-pool 1000 --kton-pool 50
  stakeclaw calc reward --amount 10000 --months 12
  stakeclaw calc format 1234567890000000000 --precision 3`)
}

// amountParser reads amounts as token decimals or, with --units, as raw
// smallest units.
type amountParser struct {
	decimals *int
	units    *bool
}

func newAmountParser(fs *flag.FlagSet) amountParser {
	return amountParser{
		decimals: fs.Int("decimals", 18, "Token decimals"),
		units:    fs.Bool("units", false, "Amounts are integers in smallest units"),
	}
}

func (p amountParser) parse(name, s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	if *p.units {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("--%s: not an integer: %q", name, s)
		}
		return v, nil
	}
	v, err := staking.ParseAmount(s, *p.decimals)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return v, nil
}

func calcPower(args []string) int {
	fs := flag.NewFlagSet("calc power", flag.ContinueOnError)
	fs.SetOutput(stderr)
	amounts := newAmountParser(fs)
	ring := fs.String("ring", "", "Staked RING")
	kton := fs.String("kton", "", "Staked KTON")
	ringPool := fs.String("ring-pool", "", "Total RING in the staking pool")
	ktonPool := fs.String("kton-pool", "", "Total KTON in the staking pool")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	var vals [4]*big.Int
	for i, f := range []struct{ name, raw string }{
		{"ring", *ring}, {"kton", *kton}, {"ring-pool", *ringPool}, {"kton-pool", *ktonPool},
	} {
		v, err := amounts.parse(f.name, f.raw)
		if err != nil {
			return errorf("%v", err)
		}
		vals[i] = v
	}

	power, err := staking.StakingToPower(vals[0], vals[1], vals[2], vals[3])
	if err != nil {
		return errorf("%v", err)
	}
	fmt.Fprintln(stdout, power.String())
	return 0
}

func calcReward(args []string) int {
	fs := flag.NewFlagSet("calc reward", flag.ContinueOnError)
	fs.SetOutput(stderr)
	amounts := newAmountParser(fs)
	amount := fs.String("amount", "", "RING to lock")
	months := fs.Int("months", 0, "Lock duration in months (1-36)")
	precision := fs.Int("precision", staking.DefaultPrecision, "Fractional digits to show")
	raw := fs.Bool("raw", false, "Print the reward in smallest units")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	deposit, err := amounts.parse("amount", *amount)
	if err != nil {
		return errorf("%v", err)
	}
	if *months > staking.MaxDepositMonths {
		fmt.Fprintf(stderr, "Warning: deposits are capped at %d months\n", staking.MaxDepositMonths)
	}
	reward, err := staking.CalcKtonReward(deposit, *months)
	if err != nil {
		return errorf("%v", err)
	}
	if *raw {
		fmt.Fprintln(stdout, reward.String())
		return 0
	}
	out, err := staking.FormatBalance(reward, *amounts.decimals, staking.FormatOptions{Precision: *precision})
	if err != nil {
		return errorf("%v", err)
	}
	fmt.Fprintln(stdout, out)
	return 0
}

func calcFormat(args []string) int {
	positional, flags := splitArgs(args, map[string]bool{"keep-zero": true})
	fs := flag.NewFlagSet("calc format", flag.ContinueOnError)
	fs.SetOutput(stderr)
	decimals := fs.Int("decimals", 18, "Token decimals")
	precision := fs.Int("precision", staking.DefaultPrecision, "Fractional digits to show")
	keepZero := fs.Bool("keep-zero", false, "Keep trailing zero digits")
	if err := fs.Parse(flags); err != nil {
		return 1
	}
	if len(positional) != 1 {
		fmt.Fprintln(stderr, "Usage: stakeclaw calc format <value> [--decimals N] [--precision N] [--keep-zero]")
		return 1
	}
	value, ok := new(big.Int).SetString(positional[0], 10)
	if !ok {
		return errorf("not an integer: %q", positional[0])
	}
	out, err := staking.FormatBalance(value, *decimals, staking.FormatOptions{Precision: *precision, KeepZero: *keepZero})
	if err != nil {
		return errorf("%v", err)
	}
	fmt.Fprintln(stdout, out)
	return 0
}
