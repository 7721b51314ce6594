// Package cli is the vaultx command line.
package cli

import (
	"fmt"
	"io"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MBenz12/vault-x/internal/client"
	"github.com/MBenz12/vault-x/internal/config"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	cfg        *config.Config
	log        *zap.Logger
}

func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "vaultx",
		Short:         "Shared-custody vault: local ledger, API and client tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(
		serveCommand(a),
		messageCommand(a),
		pdaCommand(a),
		vaultCommand(a),
		txCommand(a),
		watchCommand(a),
		airdropCommand(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	log, err := cfg.Logger()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	a.cfg = cfg
	a.log = log
	return nil
}

// rpcClient talks to the configured cluster endpoint.
func (a *app) rpcClient() *client.Client {
	return client.New(a.cfg.RPC.Endpoint,
		client.WithProgramID(a.cfg.ProgramKey()),
		client.WithWebsocket(a.cfg.RPC.WSEndpoint),
		client.WithLogger(a.log),
	)
}

func (a *app) keypair() (solana.PrivateKey, error) {
	if a.cfg.RPC.Keypair == "" {
		return nil, fmt.Errorf("rpc.keypair is not configured")
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(a.cfg.RPC.Keypair)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair: %w", err)
	}
	return key, nil
}

func parseKey(name, value string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return key, nil
}

func printf(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, format, args...)
}
