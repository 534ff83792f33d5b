package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/storycheck/storycheck/internal/config"
	"github.com/storycheck/storycheck/internal/llm"
	"github.com/storycheck/storycheck/internal/report"
	"github.com/storycheck/storycheck/internal/workflow"
)

var (
	configPath string
	outputDir  string
	verbose    bool
)

// Exit codes let CI wrappers tell generation trouble, failing tests, and
// cancellation apart.
const (
	exitOK         = 0
	exitFatal      = 1
	exitGeneration = 2
	exitTests      = 3
	exitCancelled  = 4
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", workflow.Red("Error:"), err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps terminal errors onto the documented exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, workflow.ErrGeneration):
		return exitGeneration
	case errors.Is(err, workflow.ErrTestsFailed):
		return exitTests
	case errors.Is(err, workflow.ErrCancelled):
		return exitCancelled
	default:
		return exitFatal
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "storycheck",
		Short: "Turn user stories into executable API tests that repair themselves",
		Long: `storycheck takes a free-text user story, generates a BDD feature and
step bindings for it, executes them against the configured HTTP API, and
repairs broken artifacts until the story passes or the repair budget
runs out.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "storycheck.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output", ".storycheck", "base directory for run state and artifacts")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newCleanCmd())

	return rootCmd
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newStateOrchestrator builds an orchestrator for commands that only touch
// stored run state and never call the generation backend.
func newStateOrchestrator() (*workflow.Orchestrator, error) {
	return workflow.NewOrchestrator(workflow.Options{
		BaseDir: outputDir,
		Logger:  newLogger(),
	})
}

func newRunCmd() *cobra.Command {
	var (
		story             string
		storyFile         string
		maxRepairAttempts int
		parallel          int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate, execute, and repair tests for a user story",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := resolveStory(story, storyFile)
			if err != nil {
				return err
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if parallel > 0 {
				cfg.Run.Parallel = parallel
			}

			logger := newLogger()
			client, err := llm.NewOpenAIClient(llm.Options{
				APIKeyEnv: cfg.Generation.APIKeyEnv,
				BaseURL:   cfg.Generation.BaseURL,
				Model:     cfg.Generation.Model,
				Timeout:   cfg.Generation.Timeout.Std(),
				Logger:    logger,
			})
			if err != nil {
				return fmt.Errorf("generation client: %w", err)
			}

			retries := maxRepairAttempts
			if retries <= 0 {
				retries = -1
			}
			o, err := workflow.NewOrchestrator(workflow.Options{
				BaseDir:    outputDir,
				Config:     cfg,
				Client:     client,
				Reporter:   report.NewWriter(),
				MaxRetries: retries,
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			state, err := o.Run(ctx, text)
			if state != nil {
				printReport(cmd.OutOrStdout(), o.RunDir(state.Name))
			}
			return err
		},
	}

	cmd.Flags().StringVar(&story, "story", "", "user story text")
	cmd.Flags().StringVar(&storyFile, "story-file", "", "file containing the user story (- for stdin)")
	cmd.Flags().IntVar(&maxRepairAttempts, "max-repair-attempts", workflow.DefaultMaxRetries, "repair attempts before giving up")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "scenarios to run concurrently (overrides config)")
	cmd.MarkFlagsMutuallyExclusive("story", "story-file")

	return cmd
}

func resolveStory(story, storyFile string) (string, error) {
	switch {
	case story != "":
		return story, nil
	case storyFile == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read story from stdin: %w", err)
		}
		return string(data), nil
	case storyFile != "":
		data, err := os.ReadFile(storyFile)
		if err != nil {
			return "", fmt.Errorf("failed to read story file: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("provide a story with --story or --story-file")
	}
}

// printReport renders the stored markdown report: styled when stdout is a
// terminal, raw markdown otherwise.
func printReport(out io.Writer, runDir string) {
	md, err := os.ReadFile(report.MarkdownPath(runDir))
	if err != nil {
		return
	}
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		fmt.Fprint(out, string(md))
		return
	}
	width, _, err := term.GetSize(fd)
	if err != nil {
		width = 0
	}
	fmt.Fprint(out, report.NewRenderer(width).Render(string(md)))
}

func newInitCmd() *cobra.Command {
	var (
		path  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteStarter(path, force); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created %s\n\n", path)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintf(out, "  1. Point api.baseURL at the API you want to test (edit %s)\n", path)
			fmt.Fprintln(out, "  2. Export an API key: export OPENAI_API_KEY=...")
			fmt.Fprintln(out, `  3. Run: storycheck run --story "As a user I want to fetch a user profile"`)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "storycheck.yaml", "where to write the config")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List past runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := newStateOrchestrator()
			if err != nil {
				return err
			}
			runs, err := o.List()
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), workflow.FormatRunList(runs))
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show one run's state, artifacts, and results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := newStateOrchestrator()
			if err != nil {
				return err
			}
			state, err := o.Status(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), workflow.FormatRunStatus(state))
			return nil
		},
	}
}

func newCleanCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete finished runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := newStateOrchestrator()
			if err != nil {
				return err
			}
			deleted, err := o.Clean(all)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(deleted) == 0 {
				fmt.Fprintln(out, "Nothing to clean.")
				return nil
			}
			for _, name := range deleted {
				fmt.Fprintf(out, "Deleted %s\n", name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "delete every run, finished or not")

	return cmd
}
