// Command jobrate reports per-interval Lustre job_stats rates.
package main

import (
	"context"
	stderr "errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fefsmon/jobrate/internal/adapter"
	"github.com/fefsmon/jobrate/internal/config"
	"github.com/fefsmon/jobrate/pkg/errors"
	"github.com/fefsmon/jobrate/pkg/utils"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := execute(ctx, os.Args[1], os.Args[2:], os.Stdout)
	stop()
	if err != nil {
		printError(os.Stderr, os.Args[1], err)
		os.Exit(1)
	}
}

// printError reports a failed command. Structured errors also get a hint
// for the operator; internal or wrapped ones keep their full text as detail.
func printError(w io.Writer, cmd string, err error) {
	var jerr *errors.JobrateError
	if !stderr.As(err, &jerr) {
		fmt.Fprintf(w, "jobrate %s: %v\n", cmd, err)
		return
	}
	fmt.Fprintf(w, "jobrate %s: %s\n", cmd, jerr.UserFacingMessage())
	if !jerr.UserFacing || jerr.Cause != nil {
		fmt.Fprintf(w, "  detail: %v\n", err)
	}
	fmt.Fprintf(w, "  hint: %s\n", jerr.GetRecommendation())
}

func execute(ctx context.Context, cmd string, args []string, stdout io.Writer) error {
	switch cmd {
	case "run":
		return runCommand(ctx, args)
	case "once":
		return onceCommand(ctx, args)
	case "replay":
		return replayCommand(ctx, args, stdout)
	case "validate":
		return validateCommand(args, stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

type commonFlags struct {
	config   *string
	options  *string
	logLevel *string
}

func newFlagSet(name string) (*flag.FlagSet, commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return fs, commonFlags{
		config:   fs.String("config", "", "Path to YAML configuration file"),
		options:  fs.String("o", "", `Option string, e.g. "mdt=fsA-MDT0000,v" or "ost,fs=fsA,d"`),
		logLevel: fs.String("log-level", "", "Override log level (TRACE, DEBUG, INFO, WARN, ERROR)"),
	}
}

func (f commonFlags) load() (*config.Configuration, error) {
	cfg, err := config.Load(*f.config, *f.options)
	if err != nil {
		return nil, err
	}
	if *f.logLevel != "" {
		cfg.Global.LogLevel = *f.logLevel
	}
	return cfg, nil
}

func setupLogging(cfg *config.Configuration) (*utils.StructuredLogger, error) {
	logger, err := utils.SetupLogging(cfg.Global.LogLevel, cfg.Global.LogFormat, cfg.Global.LogFile)
	if err != nil {
		return nil, err
	}
	if err := logger.SetComponentLevels(cfg.Global.ComponentLevels); err != nil {
		logger.Close()
		return nil, err
	}
	return logger, nil
}

func runCommand(ctx context.Context, args []string) error {
	fs, flags := newFlagSet("run")
	interval := fs.Duration("interval", 0, "Override sampling interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := flags.load()
	if err != nil {
		return err
	}
	if *interval > 0 {
		cfg.Global.Interval = *interval
	}
	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	a, err := adapter.New(cfg, logger)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer stopAdapter(a, logger)

	if *flags.config != "" {
		reload := func() (*config.Configuration, error) {
			return config.Load(*flags.config, *flags.options)
		}
		watcher, err := config.NewWatcher(*flags.config, reload, a.ApplyConfig, logger)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	return a.Run(ctx)
}

func onceCommand(ctx context.Context, args []string) error {
	fs, flags := newFlagSet("once")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := flags.load()
	if err != nil {
		return err
	}
	cfg.Metrics.Enabled = false
	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	a, err := adapter.New(cfg, logger)
	if err != nil {
		return err
	}
	defer stopAdapter(a, logger)

	_, err = a.RunOnce(ctx)
	return err
}

func replayCommand(ctx context.Context, args []string, stdout io.Writer) error {
	fs, flags := newFlagSet("replay")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("replay needs at least one dump file or directory")
	}

	cfg, err := flags.load()
	if err != nil {
		return err
	}
	cfg.Source.Kind = config.SourceFile
	cfg.Source.Files = fs.Args()
	cfg.Metrics.Enabled = false
	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	a, err := adapter.New(cfg, logger)
	if err != nil {
		return err
	}
	defer stopAdapter(a, logger)

	passes, err := a.Replay(ctx)
	if err != nil {
		return err
	}
	if cfg.Report.Output != "" && cfg.Report.Output != "-" {
		fmt.Fprintf(stdout, "replayed %d intervals into %s\n", passes, cfg.Report.Output)
	}
	return nil
}

func validateCommand(args []string, stdout io.Writer) error {
	fs, flags := newFlagSet("validate")
	save := fs.String("save", "", "Write the effective configuration to this path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := flags.load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if *save != "" {
		if err := cfg.SaveToFile(*save); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "saved effective configuration to %s\n", *save)
		return nil
	}
	fmt.Fprint(stdout, cfg.String())
	return nil
}

func stopAdapter(a *adapter.Adapter, logger *utils.StructuredLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(ctx); err != nil {
		logger.Warn("Shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: jobrate <command> [flags]

Commands:
  run       Sample job_stats every interval until interrupted
  once      Take a single sample and print the counts since the counters started
  replay    Compute rates from saved job_stats dumps
  validate  Check a configuration and print or -save the effective settings

Common flags:
  -config <path>     YAML configuration file
  -o <options>       Option string: mdt|ost[=vol/vol], d, v, fs=a/b, jobid=x/y
  -log-level <lvl>   Override log level`)
}
