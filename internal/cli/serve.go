package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quarryhq/quarry/internal/backend"
	"github.com/quarryhq/quarry/internal/dispatch"
	"github.com/quarryhq/quarry/internal/persist"
	"github.com/quarryhq/quarry/internal/server"
	"github.com/quarryhq/quarry/internal/session"
	"github.com/quarryhq/quarry/internal/store"
	"github.com/quarryhq/quarry/internal/synth"
)

var (
	serveAddr string
	dbPath    string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run Quarry as an HTTP + WebSocket service",
	Long: `Serve runs Quarry as a long-lived research service:
- POST /api/research opens a session or submits a follow-up query
- GET /api/sessions/{id}/report returns the current structured document
- WS /ws/research/{id} streams live status and document events
- Completed rounds are persisted to SQLite when a database path is set

Example:
  quarry serve
  quarry serve --addr :9090
  quarry serve --db ~/.quarry/sessions.db`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&dbPath, "db", "", "SQLite path for session persistence (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if dbPath != "" {
		cfg.Store.DBPath = dbPath
	}

	adapters, err := backend.Build(cfg.Backends, cfg.Cache, logger)
	if err != nil {
		return err
	}

	var saver session.Saver
	if cfg.Store.DBPath != "" {
		db, err := persist.NewStore(cfg.Store.DBPath)
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		defer db.Close()
		saver = db
	}

	registry := session.NewRegistry(func(id string) *session.Controller {
		st := store.New()
		classifier := synth.NewLexicalClassifier(cfg.Synth.DupThreshold, cfg.Synth.ConflictThreshold)
		synthesizer := synth.New(st, classifier, cfg.Synth.MaxClaimChars, logger.Named("synth"))
		dispatcher := dispatch.New(adapters, cfg.Dispatch.BackendTimeout, logger.Named("dispatch"))
		return session.New(id, dispatcher, st, synthesizer, saver, logger.Named("session"))
	})
	defer registry.CloseAll()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting quarry service",
		zap.String("addr", cfg.Server.Addr),
		zap.Int("backends", len(adapters)),
		zap.Bool("persistence", cfg.Store.DBPath != ""))

	srv := server.New(registry, cfg.Server, logger.Named("server"))
	return srv.Run(ctx)
}
