package main

import (
	"net/http"
	"strconv"

	"github.com/spf13/cobra"
)

func newAdminCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Privileged pool operations (require an admin token)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return requireToken(flags)
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "fund <pool-id> <funder> <amount>",
			Short: "Add reward to a pool and restart its emission window",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				pool, err := poolArg(args[0])
				if err != nil {
					return err
				}
				funder, err := accountArg(args[1])
				if err != nil {
					return err
				}
				body := map[string]string{"funder": funder, "amount": args[2]}
				return call(cmd, flags, http.MethodPost, "/v1/admin/pools/"+pool+"/rewards", body)
			},
		},
		&cobra.Command{
			Use:   "duration <pool-id> <seconds>",
			Short: "Set the emission window used by the next funding",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				pool, err := poolArg(args[0])
				if err != nil {
					return err
				}
				seconds, err := strconv.ParseUint(args[1], 10, 64)
				if err != nil {
					return err
				}
				return call(cmd, flags, http.MethodPut, "/v1/admin/pools/"+pool+"/duration", map[string]uint64{"duration": seconds})
			},
		},
		poolToggleCmd(flags, "pause", "Suspend staking and funding on a pool"),
		poolToggleCmd(flags, "unpause", "Lift a pool suspension"),
		&cobra.Command{
			Use:   "recover <asset> <amount> <to>",
			Short: "Send a stray asset out of custody",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				to, err := accountArg(args[2])
				if err != nil {
					return err
				}
				body := map[string]string{"asset": args[0], "amount": args[1], "to": to}
				return call(cmd, flags, http.MethodPost, "/v1/admin/recover", body)
			},
		},
		&cobra.Command{
			Use:   "mint <asset> <to> <amount>",
			Short: "Issue assets on the reference ledger (local deployments)",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				to, err := accountArg(args[1])
				if err != nil {
					return err
				}
				body := map[string]string{"asset": args[0], "to": to, "amount": args[2]}
				return call(cmd, flags, http.MethodPost, "/v1/assets/mint", body)
			},
		},
	)
	return cmd
}

func poolToggleCmd(flags *rootFlags, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <pool-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := poolArg(args[0])
			if err != nil {
				return err
			}
			return call(cmd, flags, http.MethodPost, "/v1/admin/pools/"+pool+"/"+action, nil)
		},
	}
}
