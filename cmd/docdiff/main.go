// docdiff compares tabular and text documents and answers questions about
// the differences.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docdiff/docdiff/pkg/compare"
	"github.com/docdiff/docdiff/pkg/config"
	derrors "github.com/docdiff/docdiff/pkg/errors"
	"github.com/docdiff/docdiff/pkg/loader"
	"github.com/docdiff/docdiff/pkg/logging"
	"github.com/docdiff/docdiff/pkg/qa"
	"github.com/docdiff/docdiff/pkg/telemetry"
	"github.com/docdiff/docdiff/pkg/tui"
	"github.com/docdiff/docdiff/pkg/voice"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configFile string
	debug      bool
	logFile    string
	jsonLogs   bool
)

// app holds what every command shares; built in PersistentPreRunE.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	loader   *loader.Loader
	engine   *compare.Engine
	shutdown func(context.Context) error
}

var a *app

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var coded *derrors.Error
		if debug && errors.As(err, &coded) {
			fmt.Fprint(os.Stderr, coded.FormatStack())
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docdiff",
	Short: "docdiff - compare documents and ask about the differences",
	Long: `docdiff compares CSV, TSV, Excel, PDF, Word, text, SQL and Parquet files
pairwise and explains the differences. Questions about a comparison are
answered by Gemini (set GEMINI_API_KEY).

Run without arguments to start an interactive session.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown()
	},
	RunE: runInteractive,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: /etc/docdiff, ~/.docdiff, ./.docdiff.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Log as JSON")

	tui.Version = version
}

func setup(cmd *cobra.Command, args []string) error {
	m := config.NewManager()
	if configFile != "" {
		m = config.NewManagerWithPaths(configFile)
	}
	if err := m.Load(); err != nil {
		return err
	}
	cfg := m.Get()

	logger, err := logging.New(logging.Options{Debug: debug, File: logFile, JSON: jsonLogs})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	if paths := m.GetPaths(); len(paths) > 0 {
		logger.Debug("config loaded", zap.Strings("paths", paths))
	}

	shutdown := func(context.Context) error { return nil }
	if cfg.Telemetry.Enabled {
		otlp := telemetry.DefaultOTLPConfig("docdiff")
		otlp.ServiceVersion = version
		otlp.Endpoint = cfg.Telemetry.Endpoint
		otlp.InsecureTLS = cfg.Telemetry.Insecure
		otlp.SamplingRatio = cfg.Telemetry.SamplingRatio
		if shutdown, err = telemetry.InitOTLP(cmd.Context(), otlp); err != nil {
			logger.Warn("tracing disabled", zap.Error(err))
			shutdown = func(context.Context) error { return nil }
		}
	}

	l := loader.New(loader.Options{
		Parallelism: cfg.Loader.Parallelism,
		CacheSize:   cfg.Loader.CacheSize,
		SQLDSN:      cfg.Loader.SQLDSN,
		S3: loader.S3Config{
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
		},
	}, logger)

	a = &app{
		cfg:    cfg,
		logger: logger,
		loader: l,
		engine: compare.New(
			compare.WithPreviewRows(cfg.Compare.PreviewRows),
			compare.WithWorkers(cfg.Compare.Workers),
			compare.WithLogger(logger),
		),
		shutdown: shutdown,
	}
	return nil
}

func teardown() error {
	if a == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("trace flush failed", zap.Error(err))
	}
	a.loader.Close()
	a.logger.Sync()
	return nil
}

// signalContext is canceled by SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// newQA builds the question answering service. It returns nil when no API
// key is configured.
func (a *app) newQA(ctx context.Context) (*qa.Service, func(), error) {
	if a.cfg.LLM.APIKey == "" {
		return nil, func() {}, nil
	}

	gemini, err := qa.NewGeminiModel(ctx, qa.GeminiConfig{
		APIKey:      a.cfg.LLM.APIKey,
		Model:       a.cfg.LLM.Model,
		Temperature: a.cfg.LLM.Temperature,
	})
	if err != nil {
		return nil, func() {}, err
	}

	var model qa.Model = gemini
	if a.cfg.LLM.CacheSize > 0 {
		model = qa.NewCachedModel(gemini, a.cfg.LLM.CacheSize, a.cfg.LLM.CacheTTL)
	}
	return qa.NewService(model, a.logger), func() { gemini.Close() }, nil
}

// requireQA is newQA for commands that cannot run without it.
func (a *app) requireQA(ctx context.Context) (*qa.Service, func(), error) {
	svc, closeFn, err := a.newQA(ctx)
	if err != nil {
		return nil, closeFn, err
	}
	if svc == nil {
		return nil, closeFn, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	return svc, closeFn, nil
}

// newSessionStore opens the configured conversation store.
func (a *app) newSessionStore() (qa.Store, error) {
	switch a.cfg.Session.Backend {
	case "", "memory":
		return qa.NewMemoryStore(), nil
	case "redis":
		rc := qa.DefaultRedisConfig(a.cfg.Session.RedisAddress)
		rc.Password = a.cfg.Session.RedisPassword
		if a.cfg.Session.RedisPrefix != "" {
			rc.Prefix = a.cfg.Session.RedisPrefix
		}
		rc.TTL = a.cfg.Session.TTL
		return qa.NewRedisStore(rc)
	default:
		return nil, fmt.Errorf("unknown session backend %q", a.cfg.Session.Backend)
	}
}

// newAssistant builds the voice assistant, or nil when voice is disabled.
func (a *app) newAssistant(svc *qa.Service) *voice.Assistant {
	vc := a.cfg.Voice
	if !vc.Enabled || vc.RecognizeCmd == "" {
		return nil
	}

	var std voice.Standardizer
	if svc != nil {
		std = svc
	}
	return voice.NewAssistant(
		&voice.CommandRecognizer{Command: vc.RecognizeCmd, Args: vc.RecognizeArgs, Language: vc.Language},
		&voice.CommandSynthesizer{Command: vc.SpeakCmd, Args: vc.SpeakArgs},
		std,
		a.logger,
	)
}

// runInteractive starts the read-eval loop. The first Ctrl-C cancels the
// question in flight; with nothing in flight it exits.
func runInteractive(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	svc, closeQA, err := a.newQA(ctx)
	if err != nil {
		return err
	}
	defer closeQA()

	sess := tui.NewSession(tui.SessionConfig{
		In:          os.Stdin,
		Out:         os.Stdout,
		Loader:      a.loader,
		Engine:      a.engine,
		QA:          svc,
		Assistant:   a.newAssistant(svc),
		HistorySize: a.cfg.LLM.HistorySize,
		Logger:      a.logger,
	})
	if svc == nil {
		tui.PrintWarning(os.Stdout, "GEMINI_API_KEY is not set; questions are disabled.")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for {
			select {
			case sig := <-sigChan:
				if sig == os.Interrupt && sess.Interrupt() {
					continue
				}
				cancel()
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return sess.Run(ctx)
}
