package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fenix_bridge/internal/coordinator"
	"fenix_bridge/internal/fenix"
	"fenix_bridge/internal/handlers"
	"fenix_bridge/internal/logger"
	"fenix_bridge/internal/repository"
	"fenix_bridge/internal/repository/db"
	"fenix_bridge/internal/server"
	"fenix_bridge/internal/service"

	"github.com/spf13/viper"
)

func main() {
	// init logger; the config file is not parsed yet at this point, so the
	// level comes from the environment
	log := logger.Get(logLevel())

	// load config.yml
	if err := loadConfig(); err != nil {
		log.Fatalw("error reading config", "err", err)
	}

	// open DB
	sqlDB, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Fatalw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(sqlDB)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := fenix.NewSession(vendorConfig(), log.Named("fenix"), repos.TokenRepo)
	restoreTokens(ctx, session, repos, log)
	client := fenix.NewClient(session, log.Named("fenix"))

	coord := coordinator.New(client, coordinatorConfig(), log.Named("poller"))
	go coord.Run(ctx)

	services := service.NewService(repos, client, coord, viper.GetString("auth.signing_key"))
	apiHandler := handlers.NewHandler(services, log)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, log)
}

func logLevel() string {
	if lvl := os.Getenv("FENIX_LOG_LEVEL"); lvl != "" {
		return lvl
	}
	return logger.InfoLevel
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	viper.SetEnvPrefix("fenix")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	return viper.ReadInConfig()
}

// vendorConfig maps the fenix section of the config onto the client
// configuration; unset endpoint fields fall back to production defaults.
func vendorConfig() fenix.Config {
	return fenix.Config{
		APIBase:         viper.GetString("fenix.api_base"),
		IdentityBase:    viper.GetString("fenix.identity_base"),
		ClientID:        viper.GetString("fenix.client_id"),
		ClientSecret:    viper.GetString("fenix.client_secret"),
		SubscriptionKey: viper.GetString("fenix.subscription_key"),
		Username:        viper.GetString("fenix.username"),
		Password:        viper.GetString("fenix.password"),
		Timeout:         viper.GetDuration("fenix.timeout"),
	}
}

// coordinatorConfig maps the polling section; zero values use defaults.
func coordinatorConfig() coordinator.Config {
	return coordinator.Config{
		FastInterval: viper.GetDuration("polling.fast_interval"),
		SlowInterval: viper.GetDuration("polling.slow_interval"),
		StartupGrace: viper.GetDuration("polling.startup_grace"),
		Backoff:      viper.GetDuration("polling.backoff"),
	}
}

// restoreTokens seeds the session with tokens persisted by a previous run.
func restoreTokens(ctx context.Context, session *fenix.Session, repos *repository.Repository, log *logger.Logger) {
	tokens, err := repos.TokenRepo.Load(ctx)
	if err != nil {
		log.Errorw("failed to load persisted tokens, starting logged out", "err", err)
		return
	}
	if tokens.IsEmpty() {
		log.Infow("no persisted session, first poll will log in")
		return
	}
	session.Restore(tokens)
	log.Infow("restored persisted session", "expires_at", tokens.ExpiresAt)
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "bridge.db")
		dbPath = "bridge.db"
	}
	return db.InitDB(dbPath)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
