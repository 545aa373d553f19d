// issue-token mints a bearer token signed with the service's configured
// secret, for operators and local testing.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/helpline-labs/support-desk/internal/auth"
	"github.com/helpline-labs/support-desk/internal/config"
	"github.com/helpline-labs/support-desk/internal/domain"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var (
		subject string
		roles   []string
		ttl     time.Duration
	)
	flagSet := pflag.NewFlagSet("issue-token", pflag.ContinueOnError)
	flagSet.StringVar(&subject, "subject", "", "user id placed in the sub claim (required)")
	flagSet.StringArrayVar(&roles, "role", nil, "role to grant: Admin, Agent or Customer (repeatable)")
	flagSet.DurationVar(&ttl, "ttl", cfg.Auth.AccessTokenTTL(), "token lifetime")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(subject) == "" {
		return errors.New("--subject is required")
	}
	parsed, err := parseRoles(roles)
	if err != nil {
		return err
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTLMinutes)
	token, expiresAt, err := tokens.GenerateTokenWithTTL(subject, parsed, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.UTC().Format(time.RFC3339))
	return nil
}

func parseRoles(values []string) ([]domain.Role, error) {
	known := map[string]domain.Role{
		"admin":    domain.RoleAdmin,
		"agent":    domain.RoleAgent,
		"customer": domain.RoleCustomer,
	}
	out := make([]domain.Role, 0, len(values))
	for _, v := range values {
		role, ok := known[strings.ToLower(strings.TrimSpace(v))]
		if !ok {
			return nil, fmt.Errorf("unknown role %q", v)
		}
		out = append(out, role)
	}
	if len(out) == 0 {
		return nil, errors.New("at least one --role is required")
	}
	return out, nil
}
