package cli

import (
	"fmt"
)

// commandInfo describes a top-level subcommand.
type commandInfo struct {
	Name     string
	Args     string
	Short    string
	Long     string
	Examples []string
}

var commands = []commandInfo{
	{
		Name:  "serve",
		Args:  "[--config <file>]",
		Short: "Run the API server (default action)",
		Long: `Start the stakeclaw API server.

Restores the last selected chain, starts the endpoint health monitor and
exposes the REST API and session stream on the configured port (default :8420).`,
		Examples: []string{
			"stakeclaw",
			"stakeclaw serve",
			"stakeclaw serve --config /etc/stakeclaw/stakeclaw.toml",
		},
	},
	{
		Name:  "init",
		Args:  "[--output <file>]",
		Short: "Write a default config file",
		Long: `Create a stakeclaw config with the default chain, data directory
and preference backend.`,
		Examples: []string{
			"stakeclaw init",
			"stakeclaw init --output stakeclaw.json --prefs sqlite",
		},
	},
	{
		Name:  "chain",
		Args:  "<list|show|health>",
		Short: "Inspect the supported staking chains",
		Long: `List chains from the chain table, show one chain's details, or probe
RPC endpoints.

Subcommands:
  list     List selectable chains
  show     Show one chain's endpoints, tokens and contracts
  health   Probe endpoints (exit status 2 if any chain is unhealthy)`,
		Examples: []string{
			"stakeclaw chain list --all",
			"stakeclaw chain show 46",
			"stakeclaw chain health 44 --timeout 5s",
		},
	},
	{
		Name:  "connect",
		Args:  "<chain-id> [--account 0x...]",
		Short: "Connect to a chain and read an account's stake",
		Long: `Open a session against the chain, print the endpoint in use and,
with --account, the account's staked amounts, power and deposits. The chain
is remembered as the selected network.`,
		Examples: []string{
			"stakeclaw connect 46",
			"stakeclaw connect 44 --account 0x7aE2...",
		},
	},
	{
		Name:  "calc",
		Args:  "<power|reward|format>",
		Short: "Offline staking arithmetic",
		Long: `Compute voting power, deposit rewards or render balances without a
connection.

Subcommands:
  power    Power of a stake against the pools
  reward   KTON granted for locking RING
  format   Render a smallest-unit value`,
		Examples: []string{
			"stakeclaw calc power --ring 100 --kton 10 --ring-pool 1000 --kton-pool 50",
			"stakeclaw calc reward --amount 10000 --months 12",
			"stakeclaw calc format 1234567890000000000",
		},
	},
	{
		Name:  "prefs",
		Args:  "<get|set|clear>",
		Short: "Read and write stored preferences",
		Examples: []string{
			"stakeclaw prefs get",
			"stakeclaw prefs set selectedNetwork 44",
			"stakeclaw prefs clear",
		},
	},
	{
		Name:  "token",
		Args:  "[--role viewer|operator]",
		Short: "Mint an API bearer token",
		Long:  `Sign a JWT with STAKECLAW_JWT_SECRET for use against the API.`,
		Examples: []string{
			"stakeclaw token --role operator --ttl 1h",
		},
	},
	{
		Name:  "version",
		Short: "Print version and build information",
		Examples: []string{
			"stakeclaw version",
			"stakeclaw --version",
		},
	},
}

// PrintHelp prints top-level help (stakeclaw help).
func PrintHelp(binaryName string) {
	fmt.Fprintf(stdout, `stakeclaw: Darwinia staking client
https://github.com/clawinfra/stakeclaw

USAGE:
  %s [command] [flags]

COMMANDS:
`, binaryName)

	for _, c := range commands {
		fmt.Fprintf(stdout, "  %-10s %-30s %s\n", c.Name, c.Args, c.Short)
	}

	fmt.Fprintf(stdout, `
GLOBAL FLAGS:
  --config <file>   Path to config file (default: stakeclaw.toml)
  --version         Print version information
  -h, --help        Show this help message

Run '%s help <command>' for detailed help on a specific command.
`, binaryName)
}

// PrintCommandHelp prints help for a specific subcommand. It returns false
// for an unknown command.
func PrintCommandHelp(binaryName, cmdName string) bool {
	for _, c := range commands {
		if c.Name != cmdName {
			continue
		}
		fmt.Fprintf(stdout, "COMMAND: %s %s\n\n", binaryName, c.Name)
		if c.Args != "" {
			fmt.Fprintf(stdout, "USAGE:\n  %s %s %s\n\n", binaryName, c.Name, c.Args)
		}
		if c.Long != "" {
			fmt.Fprintf(stdout, "DESCRIPTION:\n  %s\n\n", c.Long)
		}
		if len(c.Examples) > 0 {
			fmt.Fprintln(stdout, "EXAMPLES:")
			for _, ex := range c.Examples {
				fmt.Fprintf(stdout, "  %s\n", ex)
			}
			fmt.Fprintln(stdout)
		}
		return true
	}
	fmt.Fprintf(stderr, "Unknown command: %s\n\nRun '%s help' for a list of commands.\n", cmdName, binaryName)
	return false
}

// CommandNames returns all valid command names (used for error messages).
func CommandNames() []string {
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = c.Name
	}
	return names
}
