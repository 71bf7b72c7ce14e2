package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/glefebvre/livetv/internal/api"
	"github.com/glefebvre/livetv/internal/config"
	"github.com/glefebvre/livetv/internal/shutdown"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the addon over HTTP",
	Long: `Start the HTTP server exposing the addon manifest, catalogs, metadata and
streams, plus /health, /metrics and the admin routes.

The playlist is loaded once before the server starts listening so the first
catalog request is answered from a warm index.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")

		cfg := config.Get()
		if port > 0 {
			cfg.API.Port = port
		}
		if cfg.GetAppLogLevel() != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}

		loadCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		table := a.index.Load(loadCtx)
		cancel()
		a.log.WithFields(map[string]interface{}{
			"channels":    table.Len(),
			"fingerprint": table.Fingerprint,
		}).Info("playlist loaded")

		server := api.NewServer(api.Config{
			Port:        cfg.API.Port,
			CORSOrigins: cfg.API.CORSOrigins,
			AdminToken:  cfg.API.AdminToken,
		}, api.Deps{
			Addon:   a.resolver,
			Sweeper: a.sweeper,
			Store:   a.store,
			Metrics: a.metrics.Handler(),
			Logger:  a.log,
		})

		purgeCtx, stopPurge := context.WithCancel(context.Background())
		go a.resolver.PurgeEvery(purgeCtx, 0)

		handler := shutdown.New(15*time.Second, a.log)
		handler.Register("kv", func(ctx context.Context) error { return a.close() })
		handler.Register("http", server.Shutdown)
		handler.Register("purge", func(context.Context) error {
			stopPurge()
			return nil
		})

		go func() {
			if err := server.Run(); err != nil {
				a.log.Error("http server stopped", err)
				handler.TriggerShutdown()
			}
		}()

		if err := handler.Wait(); err != nil {
			fmt.Fprintf(os.Stderr, "Shutdown finished with errors: %v\n", err)
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (overrides api.port)")
	rootCmd.AddCommand(serveCmd)
}
