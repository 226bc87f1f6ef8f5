package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/clawinfra/stakeclaw/internal/prefs"
)

// PrefsCommand handles the 'stakeclaw prefs' subcommands
func PrefsCommand(args []string, configPath string) int {
	if len(args) == 0 {
		printPrefsHelp()
		return 1
	}
	switch args[0] {
	case "get", "set", "clear":
	case "help", "--help", "-h":
		printPrefsHelp()
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown prefs subcommand: %s\n", args[0])
		printPrefsHelp()
		return 1
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return errorf("loading config: %v", err)
	}
	store, err := OpenPreferences(cfg, getLogger())
	if err != nil {
		return errorf("%v", err)
	}
	defer store.Close()

	ctx := context.Background()
	switch args[0] {
	case "get":
		return prefsGet(ctx, store, args[1:])
	case "set":
		return prefsSet(ctx, store, args[1:])
	default:
		return prefsClear(ctx, store, args[1:])
	}
}

func printPrefsHelp() {
	fmt.Fprintln(stdout, `Usage: stakeclaw prefs <subcommand>

Read and write the stored user preferences.

Subcommands:
  get [key]            Print one preference, or all of them
  set <key> <value>    Store a value (JSON, or a bare string)
  clear [key]          Remove one preference, or all of them

Keys:
  selectedNetwork, selectedWallet, isConnectedToWallet, wasIntroShown`)
}

func prefsGet(ctx context.Context, store *prefs.Store, args []string) int {
	if len(args) == 0 {
		all := store.All(ctx)
		keys := make([]string, 0, len(all))
		for k := range all {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(stdout, "%s=%s\n", k, all[k])
		}
		return 0
	}
	key := prefs.Key(args[0])
	if !key.Valid() {
		return errorf("unknown preference key %q", args[0])
	}
	v, ok := store.Get(ctx, key)
	if !ok {
		return 1
	}
	fmt.Fprintln(stdout, string(v))
	return 0
}

func prefsSet(ctx context.Context, store *prefs.Store, args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "Usage: stakeclaw prefs set <key> <value>")
		return 1
	}
	key := prefs.Key(args[0])
	if !key.Valid() {
		return errorf("unknown preference key %q", args[0])
	}
	var value any = args[1]
	if json.Valid([]byte(args[1])) {
		value = json.RawMessage(args[1])
	}
	store.Set(ctx, key, value)
	return 0
}

func prefsClear(ctx context.Context, store *prefs.Store, args []string) int {
	if len(args) == 0 {
		store.Clear(ctx)
		return 0
	}
	key := prefs.Key(args[0])
	if !key.Valid() {
		return errorf("unknown preference key %q", args[0])
	}
	store.Delete(ctx, key)
	return 0
}
