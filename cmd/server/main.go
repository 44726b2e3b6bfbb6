package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iuriikogan/rlm-orchestrator/internal/agent"
	"github.com/iuriikogan/rlm-orchestrator/internal/client"
	"github.com/iuriikogan/rlm-orchestrator/internal/config"
	"github.com/iuriikogan/rlm-orchestrator/internal/observability"
	"github.com/iuriikogan/rlm-orchestrator/internal/rlm"
	"github.com/iuriikogan/rlm-orchestrator/internal/sandbox"
	"github.com/iuriikogan/rlm-orchestrator/internal/tools"
	"github.com/iuriikogan/rlm-orchestrator/internal/trajectory"
	"github.com/iuriikogan/rlm-orchestrator/internal/types"
)

type completionRequest struct {
	Prompt  string                   `json:"prompt"`
	System  string                   `json:"system,omitempty"`
	Options *types.CompletionOptions `json:"options,omitempty"`
}

type agentRequest struct {
	Task          string `json:"task"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg := config.Default()
	if path, err := config.FindConfig(*configPath); err == nil {
		loaded, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	} else if *configPath != "" {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.ApplyPricing()
	logger := observability.SetupLogger(parseLogLevel(cfg.LogLevel))

	backend, err := newBackend(cfg)
	if err != nil {
		logger.Error("failed to create backend client", "provider", cfg.Backend.Provider, "error", err)
		os.Exit(1)
	}

	registry := tools.NewRegistry()

	var exec sandbox.Executor
	if cfg.Sandbox.Enabled {
		py, err := sandbox.NewPythonExecutor(context.Background(), sandbox.PythonOptions{
			PythonBin:      cfg.Sandbox.PythonBin,
			DefaultTimeout: time.Duration(cfg.Sandbox.DefaultTimeoutSec) * time.Second,
			MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
		})
		if err != nil {
			logger.Error("failed to start sandbox", "error", err)
			os.Exit(1)
		}
		defer py.Close()
		exec = py
		registry.Register(tools.NewExecuteCodeTool(exec))
		registry.Register(tools.NewSandboxContextTool(exec))
	}

	opts := []rlm.Option{
		rlm.WithDefaults(cfg.CompletionDefaults()),
	}
	if cfg.SubCalls.Enabled {
		opts = append(opts, rlm.WithSubCallLimits(rlm.SubCallLimits{
			Enabled:           true,
			MaxPerTurn:        cfg.SubCalls.MaxPerTurn,
			BudgetInheritance: cfg.SubCalls.BudgetInheritance,
			MaxCostPerSession: cfg.SubCalls.MaxCostPerSession,
		}))
	}
	var store *trajectory.Store
	if cfg.Trajectory.SQLitePath != "" {
		store, err = trajectory.NewStore(cfg.Trajectory.SQLitePath)
		if err != nil {
			logger.Error("failed to open trajectory store", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		opts = append(opts, rlm.WithTrajectoryLogger(store))
	} else if cfg.Trajectory.JSONLPath != "" {
		jl, err := trajectory.NewJSONLLogger(cfg.Trajectory.JSONLPath)
		if err != nil {
			logger.Error("failed to open trajectory log", "error", err)
			os.Exit(1)
		}
		defer jl.Close()
		opts = append(opts, rlm.WithTrajectoryLogger(jl))
	}

	engine := rlm.New(backend, registry, opts...)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/completion", instrument(logger, handleCompletion(engine)))
	mux.HandleFunc("/agent", instrument(logger, handleAgent(engine, exec)))
	if store != nil {
		mux.HandleFunc("/trajectory/", instrument(logger, handleTrajectory(store)))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port)
	if port := os.Getenv("PORT"); port != "" {
		addr = fmt.Sprintf("%s:%s", cfg.Listen.Address, port)
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "addr", addr, "model", backend.ModelName())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited properly")
}

func newBackend(cfg *config.Config) (client.Client, error) {
	switch cfg.Backend.Provider {
	case "anthropic":
		return client.NewAnthropicClient(cfg.Backend.APIKey, cfg.Backend.Model)
	case "gemini", "":
		return client.NewGeminiClient(context.Background(), cfg.Backend.APIKey, cfg.Backend.Model)
	default:
		return nil, fmt.Errorf("unknown backend provider %q", cfg.Backend.Provider)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func handleCompletion(engine *rlm.RLM) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if req.Prompt == "" {
			respondError(w, http.StatusBadRequest, "Prompt is required")
			return
		}

		result, err := engine.Completion(r.Context(), req.Prompt, req.System, req.Options)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		// Failed completions still return 200 with a well-formed result;
		// callers inspect the success field.
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

func handleAgent(engine *rlm.RLM, exec sandbox.Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		var req agentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if req.Task == "" {
			respondError(w, http.StatusBadRequest, "Task is required")
			return
		}

		cfg := agent.DefaultConfig()
		if req.MaxIterations > 0 {
			cfg.MaxIterations = req.MaxIterations
		}
		runner := agent.NewRunner(engine, exec, cfg)
		result := runner.Run(r.Context(), req.Task)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

func handleTrajectory(store *trajectory.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		id, err := uuid.Parse(strings.TrimPrefix(r.URL.Path, "/trajectory/"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid trajectory ID")
			return
		}

		events, err := store.Load(r.Context(), id)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if len(events) == 0 {
			respondError(w, http.StatusNotFound, "Trajectory not found")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(events); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// instrument wraps a handler with request metrics and access logging.
func instrument(logger *slog.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next(rw, r)

		duration := time.Since(start).Seconds()
		observability.HttpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, http.StatusText(rw.status)).Inc()
		observability.HttpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		logger.Info("request handled", "method", r.Method, "path", r.URL.Path, "status", rw.status, "duration", duration)
	}
}

func respondError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// Custom ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
