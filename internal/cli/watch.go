package cli

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MBenz12/vault-x/internal/client"
)

func watchCommand(a *app) *cobra.Command {
	var interval time.Duration
	c := &cobra.Command{
		Use:   "watch <vault>",
		Short: "Poll a vault and print founder transaction status changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, err := parseKey("vault", args[0])
			if err != nil {
				return err
			}
			if interval <= 0 {
				interval = a.cfg.Watcher.Interval
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w := cmd.OutOrStdout()
			watcher := client.NewWatcher(a.rpcClient(), vault, interval, func(c client.Change) {
				printf(w, "%s  %s\n", time.Now().Format(time.RFC3339), c)
			})
			if err := watcher.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			watcher.Stop()
			return nil
		},
	}
	c.Flags().DurationVar(&interval, "interval", 0, "poll interval, defaults to watcher.interval")
	return c
}
