package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MBenz12/vault-x/internal/allowlist"
	"github.com/MBenz12/vault-x/internal/api"
	"github.com/MBenz12/vault-x/internal/client"
	"github.com/MBenz12/vault-x/internal/config"
	"github.com/MBenz12/vault-x/internal/ledger"
	"github.com/MBenz12/vault-x/internal/metrics"
	"github.com/MBenz12/vault-x/internal/program"
)

func serveCommand(a *app) *cobra.Command {
	var listen string
	c := &cobra.Command{
		Use:   "serve",
		Short: "Run a local ledger with the vault program behind the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				a.cfg.API.Listen = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	c.Flags().StringVar(&listen, "listen", "", "override api.listen")
	return c
}

func (a *app) openStore() (ledger.Store, error) {
	if a.cfg.Ledger.Driver == config.DriverSQLite {
		store, err := ledger.NewSQLiteStore(a.cfg.Ledger.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return ledger.NewMemoryStore(), nil
}

// newNode assembles a bank running the vault and allowlist programs.
func (a *app) newNode(store ledger.Store, m *metrics.Metrics) (*ledger.Bank, *client.Client) {
	bank := ledger.NewBank(store, ledger.WithLogger(a.log.Named("ledger")))
	bank.Register(a.cfg.ProgramKey(), program.New(
		program.WithProgramID(a.cfg.ProgramKey()),
		program.WithInitializer(a.cfg.InitializerKey()),
		program.WithMetrics(m),
		program.WithLogger(a.log.Named("program")),
	))
	bank.Register(allowlist.ProgramID, allowlist.Program{})
	c := client.New("",
		client.WithProgramID(a.cfg.ProgramKey()),
		client.WithSource(client.NewBankSource(bank)),
		client.WithLogger(a.log),
	)
	return bank, c
}

func (a *app) serve(ctx context.Context) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()
	bank, c := a.newNode(store, m)
	a.log.Info("ledger ready",
		zap.String("driver", a.cfg.Ledger.Driver),
		zap.Stringer("program", a.cfg.ProgramKey()),
		zap.Stringer("initializer", a.cfg.InitializerKey()),
	)
	return api.NewServer(bank, c, m, a.log.Named("api")).ListenAndServe(ctx, a.cfg.API.Listen)
}
