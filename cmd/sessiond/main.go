// Package main serves one schematic editing session over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/WessleyAI/wessley-schematic/engine/session"
	"github.com/WessleyAI/wessley-schematic/engine/solver"
	"github.com/WessleyAI/wessley-schematic/engine/store"
	"github.com/WessleyAI/wessley-schematic/pkg/mid"
	"github.com/WessleyAI/wessley-schematic/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port            string
	SolverTransport string
	SolverURL       string
	NATSURL         string
	SolverGRPCAddr  string
	SolverTimeout   time.Duration
	StoreBackend    string
	StoreURL        string
	Neo4jURL        string
	Neo4jUser       string
	Neo4jPass       string
	CORSOrigin      string
	MeasureRPS      float64
}

func loadConfig() Config {
	return Config{
		Port:            envOr("PORT", "8080"),
		SolverTransport: envOr("SOLVER_TRANSPORT", "http"),
		SolverURL:       envOr("SOLVER_URL", "http://localhost:5000"),
		NATSURL:         envOr("NATS_URL", nats.DefaultURL),
		SolverGRPCAddr:  envOr("SOLVER_GRPC_ADDR", "localhost:50051"),
		SolverTimeout:   durationOr("SOLVER_TIMEOUT", 10*time.Second),
		StoreBackend:    envOr("STORE_BACKEND", "memory"),
		StoreURL:        envOr("STORE_URL", "http://localhost:5000"),
		Neo4jURL:        envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:       envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:       envOr("NEO4J_PASS", "password"),
		CORSOrigin:      envOr("CORS_ORIGIN", "*"),
		MeasureRPS:      floatOr("MEASURE_RPS", 5),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return fallback
}

func floatOr(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && f > 0 {
		return f
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

// closers run in reverse on shutdown.
type closers []func()

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// connectSolver builds the configured solver transport. The NATS transport
// doubles as the sync event publisher.
func connectSolver(cfg Config, cl *closers) (solver.Client, session.Publisher, error) {
	switch cfg.SolverTransport {
	case "http":
		return solver.NewHTTP(solver.HTTPOptions{BaseURL: cfg.SolverURL, Timeout: cfg.SolverTimeout}), nil, nil
	case "nats":
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("sessiond"))
		if err != nil {
			return nil, nil, fmt.Errorf("nats connect: %w", err)
		}
		*cl = append(*cl, nc.Close)
		c := solver.NewNATS(nc)
		return c, c, nil
	case "grpc":
		conn, err := grpc.NewClient(cfg.SolverGRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, fmt.Errorf("dial solver: %w", err)
		}
		*cl = append(*cl, func() { conn.Close() })
		return solver.NewGRPC(conn), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", solver.ErrNoTransport, cfg.SolverTransport)
	}
}

func openStore(ctx context.Context, cfg Config, cl *closers) (store.Store, error) {
	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemory(store.MemoryOptions{}), nil
	case "http":
		return store.NewHTTP(store.HTTPOptions{BaseURL: cfg.StoreURL}), nil
	case "neo4j":
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
		if err != nil {
			return nil, fmt.Errorf("neo4j driver: %w", err)
		}
		*cl = append(*cl, func() { driver.Close(context.Background()) })
		if err := driver.VerifyConnectivity(ctx); err != nil {
			return nil, fmt.Errorf("neo4j connect: %w", err)
		}
		return store.NewNeo4j(driver, store.Neo4jOptions{}), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cl closers
	defer cl.close()

	client, pub, err := connectSolver(cfg, &cl)
	if err != nil {
		return err
	}
	breaker := resilience.NewBreaker(resilience.BreakerOpts{
		FailThreshold: 5,
		Timeout:       15 * time.Second,
		Neutral:       solver.NeutralErrors,
		OnStateChange: func(from, to resilience.State) {
			logger.Warn("solver breaker", "from", from.String(), "to", to.String())
		},
	})
	client = solver.WithBreaker(client, breaker)

	saves, err := openStore(ctx, cfg, &cl)
	if err != nil {
		return err
	}

	sess, err := session.New(session.Options{
		Solver:      client,
		Store:       saves,
		Publisher:   pub,
		CallTimeout: cfg.SolverTimeout,
		MeasureRate: rate.Limit(cfg.MeasureRPS),
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	mux := http.NewServeMux()
	routes(mux, sess, saves, logger)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.Metrics(),
		mid.OTel("sessiond"),
		mid.CORS(cfg.CORSOrigin),
		mid.MaxBody(4<<20),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("session server starting",
			"port", cfg.Port,
			"session", sess.ID(),
			"solver", cfg.SolverTransport,
			"store", cfg.StoreBackend,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
