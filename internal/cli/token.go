package cli

import (
	"flag"
	"fmt"
	"time"

	"github.com/clawinfra/stakeclaw/internal/security"
)

// TokenCommand handles 'stakeclaw token': it mints an API bearer token signed
// with the secret from the environment.
func TokenCommand(args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subject := fs.String("subject", "dashboard", "Token subject")
	role := fs.String("role", security.RoleViewer, "Role: operator or viewer")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	secret, ok := security.SecretFromEnv()
	if !ok {
		return errorf("%s is not set", security.SecretEnv)
	}
	if !security.ValidRole(*role) {
		return errorf("unknown role %q (valid: %v)", *role, security.ValidRoles)
	}
	if *ttl <= 0 {
		return errorf("--ttl must be positive")
	}

	token, err := security.GenerateToken(*subject, *role, secret, *ttl)
	if err != nil {
		return errorf("%v", err)
	}
	fmt.Fprintln(stdout, token)
	return 0
}
