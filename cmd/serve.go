package cmd

import (
	"os"

	"github.com/habedi/uniboard/server"
	"github.com/habedi/uniboard/pkg/clierr"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// serveCmd serves the built dashboard SPA.
func serveCmd(opts *rootOptions) *cobra.Command {
	var port int
	var dir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the built dashboard web app",
		Long:  "Serve the built dashboard web app with client-side routing, a runtime config at /config.json, /healthz and /metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				cmd.PrintErrln("Error:", err)
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("dir") {
				cfg.StaticDir = dir
			}
			if info, err := os.Stat(cfg.StaticDir); err != nil || !info.IsDir() {
				msg := "static directory not found: " + cfg.StaticDir
				cmd.PrintErrln("Error:", msg)
				return clierr.New(clierr.Validation, msg, err)
			}

			h := server.NewRouter(server.Options{
				StaticDir:      cfg.StaticDir,
				APIBaseURL:     cfg.APIBaseURL,
				RequestsPerMin: cfg.RequestsPerMin,
				AllowedOrigins: cfg.AllowedOrigins,
			})
			addr := server.ListenAddr(cfg.Port)
			cmd.Printf("Serving %s on http://%s (API %s)\n", cfg.StaticDir, addr, cfg.APIBaseURL)
			if err := server.Run(cmd.Context(), addr, h); err != nil {
				log.Error().Err(err).Msg("Server stopped")
				return clierr.New(clierr.Internal, err.Error(), err)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 3000, "Port to listen on (overrides PORT)")
	cmd.Flags().StringVarP(&dir, "dir", "d", "dist", "Directory of the built web app (overrides UNIBOARD_STATIC_DIR)")
	return cmd
}
