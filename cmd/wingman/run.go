package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shivanandmn/wingman/agent/crews"
	"github.com/shivanandmn/wingman/agent/declarative"
	"github.com/shivanandmn/wingman/config"
	"github.com/shivanandmn/wingman/llm"
)

type runOptions struct {
	configPath  string
	definitions string
	sets        []string
	executor    string
	output      string
	structured  bool
	verbose     bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <crew>",
		Short: "Run a crew once and print its result",
		Example: `  wingman run content_creation_crew --set topic="AI Ethics"
  wingman run content_creation_crew --executor openai --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != "text" && opts.output != "json" {
				return fmt.Errorf("invalid --output %q (want text or json)", opts.output)
			}
			vars, err := parseSets(opts.sets)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if opts.definitions != "" {
				cfg.Crew.DefinitionsDir = opts.definitions
			}
			if opts.executor != "" {
				cfg.LLM.Provider = opts.executor
			}
			if !opts.verbose {
				cfg.Log.Level = "warn"
			}
			cfg.Log.OutputPaths = []string{"stderr"}
			logger := initLogger(cfg.Log)
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runOnce(ctx, cmd, cfg, args[0], vars, opts, logger)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to config file (YAML)")
	cmd.Flags().StringVarP(&opts.definitions, "definitions", "d", "", "Definitions directory (overrides config)")
	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "Context value as key=value, repeatable")
	cmd.Flags().StringVar(&opts.executor, "executor", "", "Capability executor: echo, openai or gemini")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&opts.structured, "structured", false, "Attach the first JSON object found in each output")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log unit transitions to stderr")
	return cmd
}

func runOnce(ctx context.Context, cmd *cobra.Command, cfg *config.Config, crewID string, vars map[string]string, opts runOptions, logger *zap.Logger) error {
	exec, err := llm.NewExecutor(ctx, cfg.LLM, logger)
	if err != nil {
		return err
	}
	engine := crews.NewEngine(exec,
		crews.WithLogger(logger),
		crews.WithRateWindow(cfg.Crew.RateWindow),
		crews.WithMaxDelegationDepth(cfg.Crew.MaxDelegationDepth),
	)
	manager := crews.NewManager(declarative.NewStore(logger), engine, logger,
		crews.WithDefaults(cfg.Crew.DefaultContext),
	)
	if err := manager.ReloadDir(cfg.Crew.DefinitionsDir); err != nil {
		return err
	}

	if cfg.Crew.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Crew.RunTimeout)
		defer cancel()
	}

	var runOpts []crews.RunOption
	if opts.structured {
		runOpts = append(runOpts, crews.WithStructuredOutput())
	}
	if opts.verbose {
		stderr := cmd.ErrOrStderr()
		runOpts = append(runOpts, crews.WithObserver(func(ev crews.UnitEvent) {
			fmt.Fprintf(stderr, "[%s] %s %s -> %s\n", ev.At.Format("15:04:05.000"), ev.TaskID, ev.From, ev.State)
		}))
	}

	res, runErr := manager.Run(ctx, crewID, vars, runOpts...)
	if res == nil {
		return runErr
	}
	if err := printResult(cmd.OutOrStdout(), res, opts.output); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if res.Status != crews.CrewSucceeded {
		return fmt.Errorf("crew %s %s", crewID, res.Status)
	}
	return nil
}

// parseSets turns repeated key=value flags into a context map. Later keys win.
func parseSets(sets []string) (map[string]string, error) {
	vars := make(map[string]string, len(sets))
	for _, kv := range sets {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q (want key=value)", kv)
		}
		vars[k] = v
	}
	return vars, nil
}

func printResult(w io.Writer, res *crews.CrewResult, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(w, "Crew:   %s (%s)\n", res.CrewName, res.CrewID)
	fmt.Fprintf(w, "Run:    %s\n", res.RunID)
	fmt.Fprintf(w, "Status: %s\n", res.Status)
	fmt.Fprintf(w, "Tasks:  %d succeeded, %d failed, %d cancelled, %d skipped\n\n",
		res.Summary.Succeeded, res.Summary.Failed, res.Summary.Cancelled, res.Summary.Skipped)
	for _, t := range res.Tasks {
		fmt.Fprintf(w, "## %s [%s] (%s)\n", t.TaskID, t.Status, t.AgentID)
		switch {
		case t.Error != "":
			fmt.Fprintf(w, "error: %s\n\n", t.Error)
		case t.Output != "":
			fmt.Fprintf(w, "%s\n\n", t.Output)
		default:
			fmt.Fprintln(w)
		}
	}
	if res.Summary.FinalOutput != "" {
		fmt.Fprintf(w, "Final output:\n%s\n", res.Summary.FinalOutput)
	}
	return nil
}
