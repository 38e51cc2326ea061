package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/botgateway/internal/adminrest"
	"github.com/hrygo/botgateway/internal/callbackstore"
	"github.com/hrygo/botgateway/internal/config"
	"github.com/hrygo/botgateway/internal/dispatch"
	"github.com/hrygo/botgateway/internal/httpapi"
	"github.com/hrygo/botgateway/internal/ingest"
	"github.com/hrygo/botgateway/internal/metrics"
	"github.com/hrygo/botgateway/internal/mtclient"
	"github.com/hrygo/botgateway/internal/mtclient/session"
	"github.com/hrygo/botgateway/internal/reconcile"
	"github.com/hrygo/botgateway/internal/storedb"
	"github.com/hrygo/botgateway/internal/tokenstore"
	"github.com/hrygo/botgateway/internal/updates"
	"github.com/hrygo/botgateway/internal/version"
)

// terminationSignals lists the signals that trigger a graceful
// shutdown. SIGTERM is what most process managers (systemd,
// kubernetes) send to request one.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

var callbackSource string

var rootCmd = &cobra.Command{
	Use:   "botgateway",
	Short: "Compatibility gateway exposing a Bot HTTP API over an MTProto-style backend.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		run()
	},
}

var botfatherLoginCmd = &cobra.Command{
	Use:   "botfather-login <phone>",
	Short: "Report whether the privileged BotFather session is authorized.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Defaults()
		cfg.SessionsDir = viper.GetString("sessions-dir")
		if err := cfg.EnsureSessionsDir(); err != nil {
			return err
		}
		sessStore := session.New(cfg.SessionsDir, []byte(viper.GetString("session-key")))
		registry := mtclient.NewRegistry(mtclient.UnimplementedDialer{}, sessStore, nil, nil)

		ok, err := registry.AuthorizeBotFather(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("botfather authorized: %t\n", ok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(botfatherLoginCmd)
}

func init() {
	cfg := config.Defaults()

	rootCmd.PersistentFlags().String("addr", cfg.Addr, "address to bind the HTTP server")
	rootCmd.PersistentFlags().Int("port", cfg.Port, "port to bind the HTTP server")
	rootCmd.PersistentFlags().String("driver", cfg.Driver, "database driver (sqlite, postgres)")
	rootCmd.PersistentFlags().String("dsn", cfg.DSN, "database source name")
	rootCmd.PersistentFlags().String("sessions-dir", cfg.SessionsDir, "directory for encrypted MTProto session files")
	rootCmd.PersistentFlags().StringVar(&callbackSource, "callback-source", "raw", "callback reconciliation path: raw or readmodel")

	bind := func(key, flag string) {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	bind("addr", "addr")
	bind("port", "port")
	bind("driver", "driver")
	bind("dsn", "dsn")
	bind("sessions-dir", "sessions-dir")

	viper.SetEnvPrefix("botgateway")
	viper.AutomaticEnv()

	envBindings := map[string]string{
		"dsn":             "DSN",
		"domain":          "DOMAIN",
		"port":            "PORT",
		"api-id":          "API_ID",
		"api-hash":        "API_HASH",
		"public-key":      "PUBLIC_KEY",
		"admin-api-url":   "ADMIN_API_URL",
		"botfather-phone": "BOTFATHER_PHONE",
		"brand":           "BRAND",
		"session-key":     "SESSION_KEY",
	}
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			panic(err)
		}
	}
}

func run() {
	cfg := config.Defaults()
	cfg.Addr = viper.GetString("addr")
	cfg.Port = viper.GetInt("port")
	cfg.Driver = viper.GetString("driver")
	cfg.DSN = viper.GetString("dsn")
	cfg.Domain = viper.GetString("domain")
	cfg.APIID = viper.GetInt("api-id")
	cfg.APIHash = viper.GetString("api-hash")
	cfg.PublicKey = viper.GetString("public-key")
	cfg.AdminAPIURL = viper.GetString("admin-api-url")
	cfg.BotfatherPhone = viper.GetString("botfather-phone")
	cfg.SessionKey = viper.GetString("session-key")
	if brand := viper.GetString("brand"); brand != "" {
		cfg.Brand = brand
	}
	if sessDir := viper.GetString("sessions-dir"); sessDir != "" {
		cfg.SessionsDir = sessDir
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	if err := cfg.EnsureSessionsDir(); err != nil {
		slog.Error("failed to create sessions directory", "err", err)
		os.Exit(1)
	}

	slog.Info("starting botgateway", "version", version.String(), "brand", cfg.Brand)

	db, err := storedb.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		slog.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// ctx is the server's long-lived context: it owns every background
	// task (ingest subscriptions, reconciler watchers) and is only
	// canceled on shutdown, never on the completion of any one inbound
	// HTTP request.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokens := tokenstore.New(db)
	callbacks := callbackstore.New(db)

	sessionKey := []byte(cfg.SessionKey)
	sessStore := session.New(cfg.SessionsDir, sessionKey)
	registry := mtclient.NewRegistry(mtclient.UnimplementedDialer{}, sessStore, nil, nil)

	mgr := updates.New()
	admin := adminrest.New(cfg.AdminAPIURL, 10, 20)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	var watcherFn ingest.CallbackWatcherFunc
	watcher := reconcile.NewWatcher(callbacks, admin, nil)
	watcher.SetMetrics(m)
	watcherFn = func(botID int64, queryID string, peerID int64, msgID int) {
		go watcher.Watch(ctx, queryID, botID, peerID, msgID)
	}

	subscriber := ingest.New(mgr, nil, watcherFn)
	subscriber.SetMetrics(m)

	if callbackSource == "readmodel" {
		slog.Warn("callback-source=readmodel requested but no backend read-model source is wired into this build; falling back to the raw-event reconciler", "flag", callbackSource)
	}

	disp := dispatch.New(ctx, tokens, registry, mgr, callbacks, admin, subscriber, nil)
	disp.SetMetrics(m)

	srv := httpapi.New(disp, nil, reg)

	group, groupCtx := errgroup.WithContext(ctx)

	addr := fmt.Sprintf("%s:%d", cfg.Addr, cfg.Port)
	group.Go(func() error {
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			return pkgerrors.Wrap(err, "http server stopped")
		}
		return nil
	})
	group.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, terminationSignals...)
		select {
		case <-sig:
			slog.Info("shutting down")
		case <-groupCtx.Done():
		}
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	slog.Info("botgateway listening", "addr", addr)

	if err := group.Wait(); err != nil {
		slog.Error("botgateway exited with error", "err", err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
