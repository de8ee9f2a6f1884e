package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/markxiv/internal/server"
)

const defaultServerLog = "logs/markxiv.log"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve papers as Markdown over HTTP",
	Long: `Serve starts the HTTP service. GET /abs/{id} and /pdf/{id} return the
Markdown conversion of an arXiv paper; "?refresh=1" rebuilds it. The disk
cache sweeper runs in the background when cache.disk_cap_bytes is set.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	serveCmd.Flags().String("index", "", "Markdown file served at / instead of the built-in page")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("server.index_path", serveCmd.Flags().Lookup("index"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg.Log, defaultServerLog)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	st.startSweeper(ctx)

	srv, err := server.New(server.Options{
		Resolver:  st.resolver,
		IndexPath: cfg.Server.IndexPath,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx, cfg.Server.Addr)
}
