package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/iuriikogan/rlm-orchestrator/internal/agent"
	"github.com/iuriikogan/rlm-orchestrator/internal/client"
	"github.com/iuriikogan/rlm-orchestrator/internal/config"
	"github.com/iuriikogan/rlm-orchestrator/internal/observability"
	"github.com/iuriikogan/rlm-orchestrator/internal/pricing"
	"github.com/iuriikogan/rlm-orchestrator/internal/rlm"
	"github.com/iuriikogan/rlm-orchestrator/internal/sandbox"
	"github.com/iuriikogan/rlm-orchestrator/internal/tools"
	"github.com/iuriikogan/rlm-orchestrator/internal/trajectory"
	"github.com/iuriikogan/rlm-orchestrator/internal/types"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file")
		mode       = flag.String("mode", "complete", "complete, agent, or stream")
		system     = flag.String("system", "", "system prompt")
		maxDepth   = flag.Int("max-depth", 0, "recursion ceiling (0 = config default)")
		budget     = flag.Int("token-budget", 0, "token budget (0 = config default)")
		timeout    = flag.Int("timeout", 0, "timeout in seconds (0 = config default)")
		iterations = flag.Int("iterations", 0, "agent iteration limit (0 = default)")
		showJSON   = flag.Bool("json", false, "print the full result as JSON")
	)
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: rlm [flags] <prompt>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	prompt := flag.Arg(0)

	cfg := config.Default()
	if path, err := config.FindConfig(*configPath); err == nil {
		if cfg, err = config.Load(path); err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	} else if *configPath != "" {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.ApplyPricing()
	observability.SetupLogger(slog.LevelWarn)

	backend, err := newBackend(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backend: %v\n", err)
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
			fmt.Fprintf(os.Stderr, "sandbox: %v\n", err)
			os.Exit(1)
		}
		defer py.Close()
		exec = py
		registry.Register(tools.NewExecuteCodeTool(exec))
		registry.Register(tools.NewSandboxContextTool(exec))
	}

	rlmOpts := []rlm.Option{rlm.WithDefaults(cfg.CompletionDefaults())}
	if cfg.SubCalls.Enabled {
		rlmOpts = append(rlmOpts, rlm.WithSubCallLimits(rlm.SubCallLimits{
			Enabled:           true,
			MaxPerTurn:        cfg.SubCalls.MaxPerTurn,
			BudgetInheritance: cfg.SubCalls.BudgetInheritance,
			MaxCostPerSession: cfg.SubCalls.MaxCostPerSession,
		}))
	}
	if cfg.Trajectory.JSONLPath != "" {
		jl, err := trajectory.NewJSONLLogger(cfg.Trajectory.JSONLPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "trajectory log: %v\n", err)
			os.Exit(1)
		}
		defer jl.Close()
		rlmOpts = append(rlmOpts, rlm.WithTrajectoryLogger(jl))
	}

	engine := rlm.New(backend, registry, rlmOpts...)
	ctx := context.Background()

	switch *mode {
	case "stream":
		err := engine.Stream(ctx, prompt, *system, types.StreamOptions{TimeoutSeconds: *timeout}, func(chunk string) {
			fmt.Print(chunk)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nstream: %v\n", err)
			os.Exit(1)
		}
		fmt.Println()

	case "agent":
		agentCfg := agent.DefaultConfig()
		if *iterations > 0 {
			agentCfg.MaxIterations = *iterations
		}
		runner := agent.NewRunner(engine, exec, agentCfg)
		result := runner.Run(ctx, prompt)

		if *showJSON {
			json.NewEncoder(os.Stdout).Encode(result)
			return
		}
		fmt.Println(result.Answer)
		fmt.Fprintf(os.Stderr, "[%s: %d iterations, %d tokens, $%.4f, %dms]\n",
			result.AnswerSource, result.Iterations, result.TotalTokens, result.TotalCostUSD, result.DurationMS)
		if !result.Success() {
			os.Exit(1)
		}

	case "complete":
		var opts *types.CompletionOptions
		if *maxDepth > 0 || *budget > 0 || *timeout > 0 {
			o := cfg.CompletionDefaults()
			if *maxDepth > 0 {
				o.MaxDepth = *maxDepth
			}
			if *budget > 0 {
				o.TokenBudget = *budget
			}
			if *timeout > 0 {
				o.TimeoutSeconds = *timeout
			}
			opts = &o
		}

		result, err := engine.Completion(ctx, prompt, *system, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "completion: %v\n", err)
			os.Exit(1)
		}

		if *showJSON {
			json.NewEncoder(os.Stdout).Encode(result)
			return
		}
		fmt.Println(result.Response)
		usage := types.Summarize(result.Events)
		fmt.Fprintf(os.Stderr, "[%d calls, %d in / %d out tokens, %s, %dms]\n",
			usage.TotalCalls, usage.TotalInputTokens, usage.TotalOutputTokens,
			pricing.FormatCost(result.TotalCostUSD), result.DurationMS)
		if !result.Success {
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}
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
