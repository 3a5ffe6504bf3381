package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/relves/landreg/internal/config"
	"github.com/relves/landreg/internal/ledger"
	"github.com/relves/landreg/internal/storage/sqlite"
	"github.com/relves/landreg/pkg/query"
	"github.com/relves/landreg/pkg/server"
)

func main() {
	logger := newLogger()
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "generate":
		err = runGenerate(os.Args[2:])
	case "run":
		err = runNode(os.Args[2:], logger)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: landreg generate --data DIR [--out FILE]")
	fmt.Fprintln(os.Stderr, "       landreg run --config FILE [--port N] [--origin O]")
}

func newLogger() *slog.Logger {
	levelStr := os.Getenv("LOG_LEVEL")
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// runGenerate mints a node keypair and writes the YAML config.
func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "directory for node state")
	out := fs.String("out", "", "config file to write (default DATA/config.yaml)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	path := *out
	if path == "" {
		path = filepath.Join(*dataDir, "config.yaml")
	}

	cfg, err := config.Generate(*dataDir)
	if err != nil {
		return err
	}
	if err := cfg.Save(path); err != nil {
		return err
	}

	priv, err := cfg.PrivateKey()
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	fmt.Printf("node name:  %s\n", cfg.NodeName)
	fmt.Printf("public key: %s\n", hex.EncodeToString(priv.Public().(ed25519.PublicKey)))
	return nil
}

// runNode starts the finalization engine, and with --port the HTTP gateway
// as well. Without a port the process is a backend-only node.
func runNode(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "node config file (required)")
	port := fs.Int("port", 0, "gateway port; 0 runs the backend only")
	origin := fs.String("origin", "", "intended cross-origin allowance (inert)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return errors.New("--config is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	priv, err := cfg.PrivateKey()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	signer, err := ledger.NewCheckpointSigner(priv, cfg.NodeName)
	if err != nil {
		return err
	}

	metricsReg := prometheus.NewRegistry()
	node, err := ledger.Open(ctx, store, signer, ledger.Options{
		BatchMaxAge:  cfg.Intake.BatchMaxAge,
		BatchMaxSize: cfg.Intake.BatchMaxSize,
		QueueDepth:   cfg.Intake.QueueDepth,
		Logger:       logger,
		Registerer:   metricsReg,
	})
	if err != nil {
		return err
	}
	defer node.Close()

	logger.Info("node starting",
		"name", signer.Name(),
		"public_key", hex.EncodeToString(signer.PublicKey()),
		"data_dir", cfg.DataDir,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := node.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if *port > 0 {
		svc, err := query.NewService(store, logger)
		if err != nil {
			return err
		}
		gw := server.New(node, svc,
			server.WithLogger(logger),
			server.WithRegistry(metricsReg),
			server.WithOrigin(*origin),
			server.WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		)

		srv := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.ListenHost, *port),
			Handler:           gw.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("gateway listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	} else {
		logger.Info("running backend-only, no HTTP surface")
	}

	return g.Wait()
}
