package main

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/susa-must-flow/internal/config"
	"github.com/Veraticus/susa-must-flow/internal/proxy"
)

func proxyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Serve an authenticated proxy to the backend",
		Long: `Serve /api/proxy/* on proxy.listen and forward every request to api.url
with the bearer token of the current session attached.

Point other clients at http://<listen>/api/proxy to let them use the backend
without handling credentials themselves.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			sessions, err := cfg.SessionProvider()
			if err != nil {
				return err
			}

			srv, err := proxy.New(cfg.API.URL, sessions, proxy.WithLogger(slog.Default()))
			if err != nil {
				return err
			}

			listener, err := net.Listen("tcp", cfg.ProxyListen)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", cfg.ProxyListen, err)
			}
			return srv.Run(cmd.Context(), listener)
		},
	}

	cmd.Flags().String("listen", "", "listen address (default proxy.listen)")
	_ = viper.BindPFlag("proxy.listen", cmd.Flags().Lookup("listen"))

	return cmd
}
