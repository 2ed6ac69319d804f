// Command offlineworker runs the offline engine in front of the platform's
// origin: a caching reverse proxy with install, sync and push endpoints.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "offlineworker",
		Short:         "Offline cache, background sync and push for the community platform",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml, json or toml)")

	root.AddCommand(
		newServeCmd(&configPath),
		newInstallCmd(&configPath),
		newSyncCmd(&configPath),
	)
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Install the release and serve the caching proxy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			return a.serve(cmd.Context())
		},
	}
}

func newInstallCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Precache the release into the store and activate it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(cmd.Context()))

			if err := a.worker.Start(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", a.cfg.App, a.cfg.Version, a.worker.State())
			return nil
		},
	}
}

func newSyncCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:       "sync TAG",
		Short:     "Run one background sync tag against the store",
		Args:      cobra.ExactArgs(1),
		ValidArgs: syncTags(),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(cmd.Context()))

			rep, err := a.sync(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, path := range rep.Succeeded {
				fmt.Fprintf(out, "ok     %s\n", path)
			}
			for path, ferr := range rep.Failed {
				fmt.Fprintf(out, "failed %s: %v\n", path, ferr)
			}
			return rep.Err()
		},
	}
}
