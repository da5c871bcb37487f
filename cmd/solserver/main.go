// Command solserver runs the chat control plane: the HTTP surface, the
// deterministic pipeline behind it, and its sqlite-backed stores.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/SolLabsHQ/solserver-sub002/pkg/api"
	"github.com/SolLabsHQ/solserver-sub002/pkg/config"
	"github.com/SolLabsHQ/solserver-sub002/pkg/evidence"
	"github.com/SolLabsHQ/solserver-sub002/pkg/lattice"
	"github.com/SolLabsHQ/solserver-sub002/pkg/llm"
	"github.com/SolLabsHQ/solserver-sub002/pkg/observability"
	"github.com/SolLabsHQ/solserver-sub002/pkg/orchestrator"
	"github.com/SolLabsHQ/solserver-sub002/pkg/prompt"
	"github.com/SolLabsHQ/solserver-sub002/pkg/store"
)

func main() {
	// Local-dev convenience; missing .env is not an error.
	_ = godotenv.Load()

	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	ctx := context.Background()

	st, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("sqlite open failed: %v", err)
	}

	hostname, _ := os.Hostname()
	topology, err := st.EnsureTopologyKeyPrimary(ctx, hostname, cfg.DBPath)
	if err != nil {
		// Fail-closed: a topology mismatch means this process group must
		// not write to the database.
		log.Fatalf("topology guard failed: %v", err)
	}
	slog.Info("topology key verified", "topology_key", topology.TopologyKey, "db_path", topology.DBPath)

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:  "solserver",
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   1.0,
		BatchTimeout: 5 * time.Second,
		Enabled:      cfg.OTelEnabled,
		Insecure:     !cfg.IsProduction(),
	})
	if err != nil {
		log.Fatalf("observability init failed: %v", err)
	}
	defer func() { _ = obs.Shutdown(ctx) }()

	client, err := llm.New(cfg.LLMProvider, cfg.OpenAIAPIKey, cfg.OpenAIModel)
	if err != nil {
		log.Fatalf("llm provider init failed: %v", err)
	}

	profile, err := prompt.LoadProfile(cfg.PersonaProfilePath)
	if err != nil {
		log.Fatalf("persona profile load failed: %v", err)
	}

	engine := lattice.NewEngine(lattice.Config{
		Enabled:          cfg.LatticeEnabled,
		VecEnabled:       cfg.LatticeVecEnabled,
		VecQueryEnabled:  cfg.LatticeVecQueryEnabled,
		VecMaxDistance:   cfg.LatticeVecMaxDistance,
		PolicyBundlePath: cfg.PolicyBundlePath,
	}, st, lattice.NewHashEmbedder(), slog.Default())

	orch := orchestrator.New(orchestrator.Deps{
		Config:        cfg,
		Store:         st,
		LatticeEngine: engine,
		Client:        client,
		PackProvider:  evidence.LocalProvider{},
		Bundles:       prompt.NewBundleLoader(cfg.DriverBundlePath),
		Profile:       profile,
		Observability: obs,
	})

	var limiter api.Allower
	if cfg.RedisAddr != "" {
		limiter = api.NewRedisLimiter(cfg.RedisAddr, 5, 10)
		slog.Info("rate limiter: redis", "addr", cfg.RedisAddr)
	} else {
		limiter = api.NewMemoryLimiter(5, 10)
	}

	server := api.NewServer(cfg, orch, topology, limiter)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("listening", "port", cfg.Port, "env", cfg.Env)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	if ml, ok := limiter.(*api.MemoryLimiter); ok {
		ml.Close()
	}
	if err := st.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}
