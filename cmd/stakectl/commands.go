package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"farmstake/native/staking"
)

// call issues a request and prints the JSON response.
func call(cmd *cobra.Command, flags *rootFlags, method, path string, body any) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), flags.Timeout)
	defer cancel()
	var raw json.RawMessage
	if err := flags.client().do(ctx, method, path, body, &raw); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), raw)
}

func poolArg(raw string) (string, error) {
	id, err := staking.ParsePoolID(raw)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func accountArg(raw string) (string, error) {
	addr, err := staking.ParseAccount(raw)
	if err != nil {
		return "", err
	}
	return staking.HexAddr(addr), nil
}

func newPoolCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pool [pool-id]",
		Short: "Show one pool, or list every pool",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return call(cmd, flags, http.MethodGet, "/v1/pools", nil)
			}
			pool, err := poolArg(args[0])
			if err != nil {
				return err
			}
			return call(cmd, flags, http.MethodGet, "/v1/pools/"+pool, nil)
		},
	}
}

func newPositionCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "position <pool-id> <account>",
		Short: "Show the stake and claimable reward of an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := poolArg(args[0])
			if err != nil {
				return err
			}
			account, err := accountArg(args[1])
			if err != nil {
				return err
			}
			return call(cmd, flags, http.MethodGet, "/v1/pools/"+pool+"/accounts/"+account, nil)
		},
	}
}

func newBalanceCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <asset> <account>",
		Short: "Show an account's ledger balance of an asset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := accountArg(args[1])
			if err != nil {
				return err
			}
			return call(cmd, flags, http.MethodGet, "/v1/assets/"+url.PathEscape(args[0])+"/balances/"+account, nil)
		},
	}
}

type stakeBody struct {
	Account string `json:"account"`
	Amount  string `json:"amount,omitempty"`
}

func accountAction(flags *rootFlags, use, short, action string, withAmount bool) *cobra.Command {
	args := cobra.ExactArgs(2)
	if withAmount {
		args = cobra.ExactArgs(3)
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := poolArg(args[0])
			if err != nil {
				return err
			}
			account, err := accountArg(args[1])
			if err != nil {
				return err
			}
			body := stakeBody{Account: account}
			if withAmount {
				body.Amount = args[2]
			}
			return call(cmd, flags, http.MethodPost, "/v1/pools/"+pool+"/"+action, body)
		},
	}
}

func newStakeCmd(flags *rootFlags) *cobra.Command {
	return accountAction(flags, "stake <pool-id> <account> <amount>", "Stake units of the pool's asset class", "stake", true)
}

func newUnstakeCmd(flags *rootFlags) *cobra.Command {
	return accountAction(flags, "unstake <pool-id> <account> <amount>", "Withdraw staked units", "unstake", true)
}

func newClaimCmd(flags *rootFlags) *cobra.Command {
	return accountAction(flags, "claim <pool-id> <account>", "Claim the pending reward", "claim", false)
}

func newExitCmd(flags *rootFlags) *cobra.Command {
	return accountAction(flags, "exit <pool-id> <account>", "Claim the reward and withdraw the whole stake", "exit", false)
}

func newApproveCmd(flags *rootFlags) *cobra.Command {
	var (
		operator string
		revoke   bool
	)
	cmd := &cobra.Command{
		Use:   "approve <owner>",
		Short: "Allow the custody account (or --operator) to move the owner's assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := accountArg(args[0])
			if err != nil {
				return err
			}
			body := map[string]any{"owner": owner, "approved": !revoke}
			if operator != "" {
				op, err := accountArg(operator)
				if err != nil {
					return err
				}
				body["operator"] = op
			}
			return call(cmd, flags, http.MethodPost, "/v1/assets/approval", body)
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "", "operator account (defaults to the custody account)")
	cmd.Flags().BoolVar(&revoke, "revoke", false, "revoke instead of granting")
	return cmd
}

type eventQuery struct {
	Type    string
	Pool    string
	Account string
	After   uint64
	Limit   int
}

func (q eventQuery) values() url.Values {
	v := url.Values{}
	if q.Type != "" {
		v.Set("type", q.Type)
	}
	if q.Pool != "" {
		v.Set("pool", q.Pool)
	}
	if q.Account != "" {
		v.Set("account", q.Account)
	}
	if q.After > 0 {
		v.Set("after", strconv.FormatUint(q.After, 10))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

func bindEventFlags(cmd *cobra.Command, q *eventQuery) {
	cmd.Flags().StringVar(&q.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&q.Pool, "pool", "", "pool id filter")
	cmd.Flags().StringVar(&q.Account, "account", "", "account filter")
	cmd.Flags().Uint64Var(&q.After, "after", 0, "only events with a greater sequence")
}

func (q *eventQuery) normalise() error {
	if q.Pool != "" {
		pool, err := poolArg(q.Pool)
		if err != nil {
			return err
		}
		q.Pool = pool
	}
	if q.Account != "" {
		account, err := accountArg(q.Account)
		if err != nil {
			return err
		}
		q.Account = account
	}
	return nil
}

func newEventsCmd(flags *rootFlags) *cobra.Command {
	q := &eventQuery{}
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List journaled events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := q.normalise(); err != nil {
				return err
			}
			path := "/v1/events"
			if enc := q.values().Encode(); enc != "" {
				path += "?" + enc
			}
			return call(cmd, flags, http.MethodGet, path, nil)
		},
	}
	bindEventFlags(cmd, q)
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum number of events")
	return cmd
}

func requireToken(flags *rootFlags) error {
	if flags.client().token == "" {
		return fmt.Errorf("admin token required; pass --token or set %s", flags.TokenEnv)
	}
	return nil
}
