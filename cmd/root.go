package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/agentic-research/medgraph/internal/config"
	"github.com/agentic-research/medgraph/internal/corpus"
	"github.com/agentic-research/medgraph/internal/ingest"
	"github.com/agentic-research/medgraph/internal/logging"
	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

var (
	configPath string
	logMode    string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to medgraph.hcl (default ./medgraph.hcl if present)")
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "Log mode: development or production (overrides config)")
}

var rootCmd = &cobra.Command{
	Use:           "medgraph",
	Short:         "Integrity checks and queries over a medical content graph",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// env is what every command needs before it touches the corpus.
type env struct {
	cfg *config.Config
	log *logging.Logger
}

func setup() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logMode != "" {
		cfg.Log.Mode = logMode
	}
	log, err := logging.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &env{cfg: cfg, log: log}, nil
}

// source opens the corpus directory; dir overrides corpus.root when set.
func (e *env) source(dir string) (*ingest.DirSource, error) {
	if dir != "" {
		e.cfg.Corpus.Root = dir
	}
	return ingest.NewDirSource(e.cfg.Corpus.Root, ingest.Options{
		Include:  e.cfg.Corpus.Include,
		Exclude:  e.cfg.Corpus.Exclude,
		Selector: e.cfg.Corpus.Selector,
		Log:      e.log,
	})
}

// load reads and builds one generation from dir.
func (e *env) load(ctx context.Context, dir string) (*corpus.Generation, error) {
	src, err := e.source(dir)
	if err != nil {
		return nil, err
	}
	return corpus.NewManager(src, e.log).Reload(ctx)
}

func argOr(args []string, i int, def string) string {
	if i < len(args) {
		return args[i]
	}
	return def
}
