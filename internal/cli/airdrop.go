package cli

import (
	"github.com/spf13/cobra"

	"github.com/MBenz12/vault-x/internal/api"
	"github.com/MBenz12/vault-x/internal/client"
)

func airdropCommand(a *app) *cobra.Command {
	var node string
	c := &cobra.Command{
		Use:   "airdrop <pubkey> <sol>",
		Short: "Fund an address on a local node started with serve",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey("address", args[0])
			if err != nil {
				return err
			}
			lamports, err := client.ParseSOL(args[1])
			if err != nil {
				return err
			}
			receipt, err := api.NewNodeClient(node).Airdrop(cmd.Context(), key, lamports)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Airdropped %s to %s (slot %d)\n", client.FormatSOL(lamports), key, receipt.Slot)
			return nil
		},
	}
	c.Flags().StringVar(&node, "node", "http://127.0.0.1:8080", "node API base URL")
	return c
}
