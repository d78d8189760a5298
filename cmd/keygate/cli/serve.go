package cli

import (
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/keygatehq/keygate/internal/config"
	"github.com/keygatehq/keygate/internal/credential"
	"github.com/keygatehq/keygate/internal/entitlement"
	"github.com/keygatehq/keygate/internal/metrics"
	"github.com/keygatehq/keygate/internal/server"
	"github.com/keygatehq/keygate/internal/service"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Keygate API server",
		Long:  "Start the HTTP server that authenticates API keys, enforces quotas, and serves the key-management API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool) error {
	cfg := loadConfig()

	logLevel := slog.LevelInfo
	if dev || cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}
	var lh slog.Handler
	if cfg.Logging.Format == "json" {
		lh = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	} else {
		lh = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(lh)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("store initialized", "driver", cfg.Storage.Driver)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	storeTimeout := config.Duration(cfg.Limits.StoreTimeout, 5*time.Second)
	window := config.Duration(cfg.Limits.Window, time.Hour)

	gen := credential.NewGenerator(cfg.Auth.KeyPrefix, cfg.Auth.KeySuffixLen)
	hasher := credential.NewHasher(cfg.Auth.BcryptCost)

	var gate entitlement.Gate
	if cfg.Entitlement.URL != "" {
		gate = entitlement.NewHTTPGate(cfg.Entitlement.URL, config.Duration(cfg.Entitlement.Timeout, 5*time.Second))
		logger.Info("entitlement gate configured", "url", cfg.Entitlement.URL)
	} else {
		gate = entitlement.StaticGate{Quota: cfg.Limits.DefaultQuota}
		logger.Info("static entitlement gate", "default_quota", cfg.Limits.DefaultQuota)
	}

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		jwtSecret = viper.GetString("auth.jwt_secret")
	}
	if jwtSecret == "" {
		logger.Warn("no JWT secret configured, using insecure development default")
		jwtSecret = "keygate-dev-secret-change-me"
	}

	svcs := server.Services{
		Store:     st,
		Auth:      service.NewAuthenticator(st, hasher, gen.Prefix(), gen.KeyLength(), storeTimeout, logger),
		Limiter:   service.NewLimiter(st, window, storeTimeout, logger, m),
		Recorder:  service.NewRecorder(st, storeTimeout, logger, m),
		Sessions:  service.NewSessions(st, jwtSecret, config.Duration(cfg.Auth.JWTExpiry, 24*time.Hour), logger),
		Gate:      gate,
		Generator: gen,
		Hasher:    hasher,
		Metrics:   m,
		Registry:  reg,
	}

	srvCfg := server.Config{
		Host:            host,
		Port:            port,
		ShutdownTimeout: config.Duration(cfg.Server.ShutdownTimeout, 30*time.Second),
		CORSOrigins:     cfg.Server.CORSOrigins,
		LoginRatePerMin: cfg.Server.LoginRatePerMin,
	}

	srv := server.New(srvCfg, svcs, logger)
	return srv.ListenAndServe()
}
