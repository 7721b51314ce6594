package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/MBenz12/vault-x/internal/client"
	"github.com/MBenz12/vault-x/internal/message"
	"github.com/MBenz12/vault-x/internal/state"
)

func vaultCommand(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "vault",
		Short: "Create and read vaults on the configured cluster",
	}
	c.AddCommand(vaultShowCommand(a), vaultCreateCommand(a))
	return c
}

func vaultShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <vault>",
		Short: "Print a vault's roster and its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, err := parseKey("vault", args[0])
			if err != nil {
				return err
			}
			return showVault(cmd, a.rpcClient(), vault)
		},
	}
}

func showVault(cmd *cobra.Command, c *client.Client, vault solana.PublicKey) error {
	ctx := cmd.Context()
	v, err := c.FetchVault(ctx, vault)
	if err != nil {
		return err
	}
	fund, err := c.Resolver().Fund(vault)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	printf(w, "Vault          %s\n", vault)
	printf(w, "Fund           %s\n", fund.Address)
	if acct, err := c.Source().Account(ctx, fund.Address); err == nil {
		printf(w, "Fund balance   %s\n", client.FormatSOL(acct.Lamports))
	}
	printf(w, "Administrator  %s\n", v.Administrator)
	printf(w, "Allowlist      %s\n", v.AllowlistTree)
	printf(w, "Threshold      %d of %d\n", v.FounderThreshold, v.Founders.Len())
	printf(w, "Index          %d (stale up to %d)\n", v.TransactionIndex, v.StaleTransactionIndex)
	writeKeys(w, "Founders", v.Founders)
	writeKeys(w, "Members", v.Members)

	founder, err := c.FounderTransactions(ctx, vault)
	if err != nil {
		return err
	}
	member, err := c.MemberTransactions(ctx, vault)
	if err != nil {
		return err
	}
	printf(w, "Transactions:\n")
	for _, k := range founder {
		tx := k.Transaction
		stale := ""
		if !tx.Status.Terminal() && v.IsStale(tx.TransactionIndex) {
			stale = " stale"
		}
		printf(w, "  %4d founder %-9s%s approvals %d/%d rejects %d  %s\n",
			tx.TransactionIndex, tx.Status, stale, tx.Approved.Len(), v.FounderThreshold, tx.Rejected.Len(), k.Address)
	}
	for _, k := range member {
		printf(w, "  %4d member  by %s  %s\n", k.Transaction.TransactionIndex, k.Transaction.Creator, k.Address)
	}
	return nil
}

func writeKeys(w io.Writer, title string, keys state.KeySet) {
	printf(w, "%s (%d):\n", title, keys.Len())
	for _, k := range keys {
		printf(w, "  %s\n", k)
	}
}

func vaultCreateCommand(a *app) *cobra.Command {
	var (
		founderArgs []string
		threshold   uint16
		tree        string
	)
	c := &cobra.Command{
		Use:   "create",
		Short: "Create a vault administered by the configured keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, err := a.keypair()
			if err != nil {
				return err
			}
			treeKey, err := parseKey("allowlist tree", tree)
			if err != nil {
				return err
			}
			founders := make([]solana.PublicKey, 0, len(founderArgs))
			for _, f := range founderArgs {
				key, err := parseKey("founder", f)
				if err != nil {
					return err
				}
				founders = append(founders, key)
			}

			c := a.rpcClient()
			cfg, err := c.FetchConfig(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read vault config: %w", err)
			}
			createKey := solana.NewWallet().PrivateKey
			ix, vault, err := c.CreateVault(client.CreateVaultParams{
				CreateKey:     createKey.PublicKey(),
				Administrator: admin.PublicKey(),
				Treasury:      cfg.Treasury,
				AllowlistTree: treeKey,
				Threshold:     threshold,
				Founders:      founders,
			})
			if err != nil {
				return err
			}
			sig, err := c.SendAndConfirm(cmd.Context(), []solana.Instruction{ix}, admin, createKey)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Created vault %s (fee %s)\nSignature %s\n", vault, client.FormatSOL(cfg.CreationFee), sig)
			return nil
		},
	}
	c.Flags().StringSliceVar(&founderArgs, "founder", nil, "founder address, repeatable")
	c.Flags().Uint16Var(&threshold, "threshold", 1, "approvals needed to execute")
	c.Flags().StringVar(&tree, "allowlist", "", "allowlist tree address")
	c.MarkFlagRequired("founder")
	c.MarkFlagRequired("allowlist")
	return c
}

func txCommand(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "tx",
		Short: "Propose, vote on and execute founder transactions",
	}
	c.AddCommand(txShowCommand(a), txProposeCommand(a))
	for _, name := range []string{"approve", "reject", "cancel", "execute"} {
		c.AddCommand(txActionCommand(a, name))
	}
	return c
}

func parseIndex(s string) (uint32, error) {
	index, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q: %w", s, err)
	}
	return uint32(index), nil
}

func txShowCommand(a *app) *cobra.Command {
	var member bool
	c := &cobra.Command{
		Use:   "show <vault> <index>",
		Short: "Print a founder or member transaction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, err := parseKey("vault", args[0])
			if err != nil {
				return err
			}
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			return showTransaction(cmd, a.rpcClient(), vault, index, member)
		},
	}
	c.Flags().BoolVar(&member, "member", false, "show the member transaction at index")
	return c
}

func showTransaction(cmd *cobra.Command, c *client.Client, vault solana.PublicKey, index uint32, member bool) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()
	if member {
		addr, err := c.Resolver().MemberTransaction(vault, index)
		if err != nil {
			return err
		}
		tx, err := c.FetchMemberTransaction(ctx, addr.Address)
		if err != nil {
			return err
		}
		printf(w, "Member transaction %d  %s\n", index, addr.Address)
		printf(w, "Creator  %s\n", tx.Creator)
		writeMessage(w, &tx.Message)
		return nil
	}

	addr, err := c.Resolver().FounderTransaction(vault, index)
	if err != nil {
		return err
	}
	tx, err := c.FetchFounderTransaction(ctx, addr.Address)
	if err != nil {
		return err
	}
	v, err := c.FetchVault(ctx, vault)
	if err != nil {
		return err
	}
	printf(w, "Founder transaction %d  %s\n", index, addr.Address)
	printf(w, "Creator  %s\n", tx.Creator)
	printf(w, "Status   %s", tx.Status)
	if !tx.Status.Terminal() && v.IsStale(index) {
		printf(w, " (stale)")
	}
	printf(w, "\n")
	writeKeys(w, "Approved", tx.Approved)
	writeKeys(w, "Rejected", tx.Rejected)
	writeKeys(w, "Cancelled", tx.Cancelled)
	writeMessage(w, &tx.Message)
	return nil
}

func txProposeCommand(a *app) *cobra.Command {
	var (
		encoding  string
		ephemeral uint8
	)
	c := &cobra.Command{
		Use:   "propose <vault> <message>",
		Short: "Create a founder transaction from an encoded message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, err := parseKey("vault", args[0])
			if err != nil {
				return err
			}
			raw, err := decodePayload(args[1], encoding)
			if err != nil {
				return err
			}
			msg, err := message.Parse(raw)
			if err != nil {
				return err
			}
			founder, err := a.keypair()
			if err != nil {
				return err
			}

			c := a.rpcClient()
			index, err := c.NextTransactionIndex(cmd.Context(), vault)
			if err != nil {
				return err
			}
			ix, txKey, err := c.CreateFounderTransaction(vault, founder.PublicKey(), index, ephemeral, msg)
			if err != nil {
				return err
			}
			sig, err := c.SendAndConfirm(cmd.Context(), []solana.Instruction{ix}, founder)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Proposed transaction %d at %s\nSignature %s\n", index, txKey, sig)
			return nil
		},
	}
	c.Flags().StringVar(&encoding, "encoding", "base58", "message encoding: base58 or base64")
	c.Flags().Uint8Var(&ephemeral, "ephemeral", 0, "ephemeral signers the message uses")
	return c
}

func txActionCommand(a *app, action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <vault> <index>",
		Short: fmt.Sprintf("%s a founder transaction with the configured keypair", action),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, err := parseKey("vault", args[0])
			if err != nil {
				return err
			}
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			founder, err := a.keypair()
			if err != nil {
				return err
			}

			c := a.rpcClient()
			ix, err := founderAction(cmd, c, action, vault, founder.PublicKey(), index)
			if err != nil {
				return err
			}
			sig, err := c.SendAndConfirm(cmd.Context(), []solana.Instruction{ix}, founder)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s transaction %d: %s\n", action, index, sig)
			return nil
		},
	}
}

func founderAction(cmd *cobra.Command, c *client.Client, action string, vault, founder solana.PublicKey, index uint32) (solana.Instruction, error) {
	switch action {
	case "approve":
		return c.ApproveFounderTransaction(vault, founder, index)
	case "reject":
		return c.RejectFounderTransaction(vault, founder, index)
	case "cancel":
		return c.CancelFounderTransaction(vault, founder, index)
	case "execute":
		txKey, err := c.Resolver().FounderTransaction(vault, index)
		if err != nil {
			return nil, err
		}
		tx, err := c.FetchFounderTransaction(cmd.Context(), txKey.Address)
		if err != nil {
			return nil, err
		}
		return c.ExecuteFounderTransaction(vault, founder, index, &tx.Message, uint8(len(tx.EphemeralSignerBumps)))
	}
	return nil, fmt.Errorf("unknown action %q", action)
}
