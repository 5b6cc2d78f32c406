package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/tuskguard/internal/api"
	"github.com/good-yellow-bee/tuskguard/internal/api/auth"
	"github.com/good-yellow-bee/tuskguard/internal/api/health"
	"github.com/good-yellow-bee/tuskguard/internal/ingest"
	"github.com/good-yellow-bee/tuskguard/internal/logging"
	"github.com/good-yellow-bee/tuskguard/internal/metrics"
	"github.com/good-yellow-bee/tuskguard/internal/mqtt"
	"github.com/good-yellow-bee/tuskguard/pkg/config"
)

var (
	configFile string
	httpAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "tuskguard-server",
	Short: "TuskGuard Server - collar geofence and anomaly alerting",
	Long: `TuskGuard Server ingests GPS collar telemetry over HTTP and MQTT,
evaluates geofences and stationary animals, and notifies authorities.`,
	SilenceUsage: true,
	RunE:         runServer,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API, MQTT ingestion and periodic checks",
	RunE:  runServer,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one periodic check and print the summary",
	RunE:  runCheck,
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize [file]",
	Short: "Normalize a collar payload without storing it",
	Long: `Normalize reads a JSON payload from a file, or stdin when the file is
"-" or omitted, and prints the normalized reading. Collars are not resolved.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runNormalize,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin API bearer token",
	RunE:  runToken,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tuskguard-server %s\n", config.GetBuildInfo())
	},
}

var (
	normalizeProvider string
	tokenSubject      string
	tokenRole         string
	tokenTTL          time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP listen address (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	normalizeCmd.Flags().StringVarP(&normalizeProvider, "provider", "p", "", "provider name (default: auto-detect)")

	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "token subject, e.g. an operator name")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(auth.RoleOperator), "role: admin, operator or viewer")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default: server.token_ttl)")
	tokenCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(serveCmd, checkCmd, normalizeCmd, tokenCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*Config, error) {
	var cfg *Config
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	if httpAddr != "" {
		cfg.Server.HTTPAddress = httpAddr
	}
	cfg.Verbose = verbose
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func newLogger(cfg *Config) (*zap.Logger, error) {
	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, "tuskguard-server")
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signalContext(logger)
	defer cancel()

	p, err := newPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.close()

	metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)

	srv, err := api.New(&api.Config{
		Address:        cfg.Server.HTTPAddress,
		JWTSecret:      []byte(cfg.Server.JWTSecret),
		TokenTTL:       cfg.Server.TokenTTL,
		RateLimitPerIP: cfg.Server.RateLimitPerMinute,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		RequestTimeout: cfg.Server.RequestTimeout,
		Version:        config.Version,
		Verbose:        cfg.Verbose,
	}, api.Deps{
		Store:     p.store,
		Ingester:  p.ingestor,
		Geofences: p.geofences,
		Checker:   p.checker,
		Raiser:    p.raiser,
		Cooldowns: p.gate,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}
	srv.RegisterHealthChecker(health.NewSQLiteChecker(p.store.DB()))
	if p.redis != nil {
		srv.RegisterHealthChecker(health.NewRedisChecker(p.redis))
	}

	var subscriber *mqtt.Subscriber
	if cfg.MQTT.Enabled {
		subscriber = mqtt.NewSubscriber(mqtt.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
		}, p.ingestor, logger)
		if err := subscriber.Start(ctx); err != nil {
			return fmt.Errorf("start mqtt subscriber: %w", err)
		}
		defer subscriber.Stop()
		srv.RegisterHealthChecker(health.NewMQTTChecker(subscriber.Connected))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Run(gctx); err != nil {
			return fmt.Errorf("run API server: %w", err)
		}
		return nil
	})

	if cfg.Server.MetricsAddress != "" {
		ms := metrics.NewServer(cfg.Server.MetricsAddress, logger)
		g.Go(func() error { return ms.Run(gctx) })
	}

	if cfg.Scheduler.Interval > 0 {
		g.Go(func() error {
			return p.checker.Run(gctx, cfg.Scheduler.Interval)
		})
	} else {
		logger.Info("periodic checks disabled, use POST /api/v1/checks or the check command")
	}

	logger.Info("starting tuskguard-server",
		zap.String("version", config.Version),
		zap.String("http", cfg.Server.HTTPAddress),
		zap.Bool("auth", cfg.Server.JWTSecret != ""),
		zap.Bool("mqtt", cfg.MQTT.Enabled),
		zap.Bool("redis", cfg.Redis.Enabled),
	)

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signalContext(logger)
	defer cancel()

	p, err := newPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.close()

	summary, err := p.checker.RunOnce(ctx)
	if summary != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(summary); encErr != nil {
			return fmt.Errorf("write summary: %w", encErr)
		}
	}
	if err != nil {
		return fmt.Errorf("run check: %w", err)
	}
	return nil
}

func runNormalize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open payload: %w", err)
		}
		defer f.Close()
		in = f
	}
	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	registry := ingest.NewDefaultRegistry()
	if err := ingest.RegisterProviders(registry, cfg.Providers); err != nil {
		return fmt.Errorf("register providers: %w", err)
	}

	if normalizeProvider != "" {
		if _, ok := registry.GetByName(normalizeProvider); !ok {
			return fmt.Errorf("unknown provider %q (known: %s)", normalizeProvider, strings.Join(registry.Names(), ", "))
		}
	}

	normalizer := ingest.NewNormalizer(registry, nil)
	normalizer.SetMaxClockSkew(cfg.Ingest.MaxClockSkew)
	res, err := normalizer.Decode(raw, normalizeProvider)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"detection": res.Detection,
		"reading":   res.Reading,
	})
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("%s is not set, admin routes are unauthenticated", envJWTSecret)
	}

	role, err := auth.ParseRole(tokenRole)
	if err != nil {
		return err
	}
	ttl := cfg.Server.TokenTTL
	if tokenTTL > 0 {
		ttl = tokenTTL
	}

	svc := auth.NewJWTService([]byte(cfg.Server.JWTSecret), ttl)
	token, err := svc.GenerateToken(tokenSubject, role)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "role %s, expires in %s\n", role, svc.TTL())
	return nil
}
