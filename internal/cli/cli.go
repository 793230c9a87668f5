package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/buildgridgo/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("buildgridgo", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
BuildGridGo - An incremental, concurrent build-graph engine.

Usage:
  buildgridgo [options] [TARGET_SPEC ...]

Arguments:
  TARGET_SPEC
    Target specs such as //src/core:lib restricting execution to their
    transitive dependency closure. Omit to run against every target.

Options:
`)
		flagSet.PrintDefaults()
	}

	buildPathFlag := flagSet.String("build-path", ".", "Path to a manifest file or a directory of .hcl manifests.")
	goalsFlag := flagSet.String("goals", "build", "Comma-separated goal names to execute, in order.")
	workersFlag := flagSet.Int("workers", 10, "Number of concurrent workers for the rule scheduler.")
	workdirFlag := flagSet.String("workdir", ".bgg", "Directory for per-version task results.")
	cacheDirFlag := flagSet.String("cache-dir", "", "Directory for the local artifact cache. Empty disables it.")
	remoteCacheFlag := flagSet.String("remote-cache-url", "", "Base URL of the remote artifact cache. Empty disables it.")
	noCacheFlag := flagSet.Bool("no-cache", false, "Treat every target as invalid on every run.")
	invalidateDepsFlag := flagSet.Bool("invalidate-dependents", false, "Also invalidate transitive dependents of invalid targets.")
	watchFlag := flagSet.Bool("watch", false, "Keep running and re-execute goals as files change.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	if *workersFlag <= 0 {
		return nil, false, &ExitError{Code: 2, Message: "invalid workers: must be positive"}
	}

	var goals []string
	for _, goal := range strings.Split(*goalsFlag, ",") {
		goal = strings.TrimSpace(goal)
		if goal != "" {
			goals = append(goals, goal)
		}
	}
	if len(goals) == 0 {
		return nil, false, &ExitError{Code: 2, Message: "invalid goals: at least one goal is required"}
	}

	slog.Debug("CLI parameter validation complete.")

	config := &app.Config{
		BuildPath:            *buildPathFlag,
		Goals:                goals,
		TargetSpecs:          flagSet.Args(),
		Workers:              *workersFlag,
		Workdir:              *workdirFlag,
		CacheDir:             *cacheDirFlag,
		RemoteCacheURL:       *remoteCacheFlag,
		NoCache:              *noCacheFlag,
		InvalidateDependents: *invalidateDepsFlag,
		Watch:                *watchFlag,
		LogFormat:            logFormat,
		LogLevel:             logLevel,
	}

	slog.Debug("CLI parser finished successfully.")
	return config, false, nil
}
