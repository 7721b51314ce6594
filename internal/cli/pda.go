package cli

import (
	"github.com/spf13/cobra"

	"github.com/MBenz12/vault-x/internal/pda"
)

func pdaCommand(a *app) *cobra.Command {
	var (
		index     uint32
		ephemeral uint8
	)
	c := &cobra.Command{
		Use:   "pda <create-key>",
		Short: "Derive the addresses of the vault created with create-key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			createKey, err := parseKey("create key", args[0])
			if err != nil {
				return err
			}
			r := pda.NewResolver(a.cfg.ProgramKey())
			w := cmd.OutOrStdout()

			cfg, err := r.VaultConfig()
			if err != nil {
				return err
			}
			vault, err := r.Vault(createKey)
			if err != nil {
				return err
			}
			fund, err := r.Fund(vault.Address)
			if err != nil {
				return err
			}
			printf(w, "config  %s (bump %d)\n", cfg.Address, cfg.Bump)
			printf(w, "vault   %s (bump %d)\n", vault.Address, vault.Bump)
			printf(w, "fund    %s (bump %d)\n", fund.Address, fund.Bump)
			if index == 0 {
				return nil
			}

			founderTx, err := r.FounderTransaction(vault.Address, index)
			if err != nil {
				return err
			}
			memberTx, err := r.MemberTransaction(vault.Address, index)
			if err != nil {
				return err
			}
			printf(w, "founder transaction %d  %s\n", index, founderTx.Address)
			printf(w, "member transaction %d   %s\n", index, memberTx.Address)
			for _, tx := range []pda.Authority{founderTx, memberTx} {
				signers, err := r.EphemeralSigners(tx.Address, ephemeral)
				if err != nil {
					return err
				}
				for i, s := range signers {
					printf(w, "  ephemeral %d of %s  %s\n", i, tx.Address, s.Address)
				}
			}
			return nil
		},
	}
	c.Flags().Uint32Var(&index, "index", 0, "also derive the transactions at this index")
	c.Flags().Uint8Var(&ephemeral, "ephemeral", 0, "ephemeral signers to derive per transaction")
	return c
}
