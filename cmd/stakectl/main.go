package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	Endpoint string
	Token    string
	TokenEnv string
	Timeout  time.Duration
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "stakectl",
		Short:         "Operate a farmstake staking daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.Endpoint, "endpoint", envOr("STAKECTL_ENDPOINT", "http://127.0.0.1:8086"), "stakingd base URL")
	cmd.PersistentFlags().StringVar(&flags.Token, "token", "", "admin bearer token")
	cmd.PersistentFlags().StringVar(&flags.TokenEnv, "token-env", "STAKECTL_TOKEN", "environment variable holding the admin bearer token")
	cmd.PersistentFlags().DurationVar(&flags.Timeout, "timeout", 15*time.Second, "request timeout")

	cmd.AddCommand(
		newPoolCmd(flags),
		newPositionCmd(flags),
		newBalanceCmd(flags),
		newStakeCmd(flags),
		newUnstakeCmd(flags),
		newClaimCmd(flags),
		newExitCmd(flags),
		newApproveCmd(flags),
		newAdminCmd(flags),
		newEventsCmd(flags),
		newExportCmd(flags),
		newTokenCmd(),
	)
	return cmd
}

func (f *rootFlags) client() *client {
	token := strings.TrimSpace(f.Token)
	if token == "" && f.TokenEnv != "" {
		token = strings.TrimSpace(os.Getenv(f.TokenEnv))
	}
	return newClient(f.Endpoint, token, f.Timeout)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
