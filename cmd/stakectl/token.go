package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"farmstake/services/stakingd"
)

type tokenFlags struct {
	Subject   string
	Scopes    []string
	Issuer    string
	Audience  string
	TTL       time.Duration
	SecretEnv string
}

func newTokenCmd() *cobra.Command {
	f := &tokenFlags{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 admin token for stakingd",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecret(f.SecretEnv, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			tok, err := stakingd.IssueToken(stakingd.TokenRequest{
				Secret:   secret,
				Subject:  f.Subject,
				Issuer:   f.Issuer,
				Audience: f.Audience,
				Scopes:   f.Scopes,
				TTL:      f.TTL,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&f.Subject, "subject", "", "operator identity recorded in audit logs")
	cmd.Flags().StringSliceVar(&f.Scopes, "scope", []string{"staking:admin"}, "scopes granted by the token")
	cmd.Flags().StringVar(&f.Issuer, "issuer", "farmstake", "token issuer")
	cmd.Flags().StringVar(&f.Audience, "audience", "stakingd", "token audience")
	cmd.Flags().DurationVar(&f.TTL, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&f.SecretEnv, "secret-env", "FARMSTAKE_ADMIN_SECRET", "environment variable holding the signing secret")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

// readSecret prefers the environment and falls back to an interactive prompt.
func readSecret(envVar string, prompt io.Writer) (string, error) {
	envVar = strings.TrimSpace(envVar)
	if envVar != "" {
		if value, ok := os.LookupEnv(envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", envVar)
			}
			return value, nil
		}
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		if envVar != "" {
			return "", fmt.Errorf("signing secret required; set %s or run interactively", envVar)
		}
		return "", errors.New("signing secret required and no terminal available")
	}
	fmt.Fprint(prompt, "Enter admin signing secret: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	secret := string(raw)
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("signing secret cannot be empty")
	}
	return secret, nil
}
