package main

import (
	"log/slog"

	"github.com/openmined/docsync/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP trigger endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLogs, err := prepare(cmd)
			if err != nil {
				return err
			}
			defer closeLogs()

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			svc := server.NewServices(a.set, a.runHistory())

			srv, err := server.New(&cfg.Server, svc)
			if err != nil {
				return err
			}

			slog.Info("serving targets", "targets", a.set.Names(), "addr", cfg.Server.Addr)
			defer slog.Info("Bye!")
			return srv.Start(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "listen address (default 127.0.0.1:7071)")
	return cmd
}
