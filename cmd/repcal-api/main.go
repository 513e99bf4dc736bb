package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/repcal/backend/internal/calendar"
	"github.com/repcal/backend/internal/catalog"
	"github.com/repcal/backend/internal/completions"
	"github.com/repcal/backend/internal/config"
	"github.com/repcal/backend/internal/database"
	"github.com/repcal/backend/internal/logging"
	"github.com/repcal/backend/internal/schedules"
	"github.com/repcal/backend/internal/server"
	"github.com/repcal/backend/internal/workouts"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "repcal-api",
		Short: "Personal workout planner backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("legacy-path", defaults.GetString("legacy.path"), "Legacy flat-file store to import on first run")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "legacy.path", "legacy-path")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := database.ImportLegacy(db, appConfig.LegacyStorePath, logger); err != nil {
		return err
	}

	catalogService, err := catalog.NewService(catalog.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	if err := catalogService.SeedDefaults(ctx); err != nil {
		return err
	}

	// The completion tracker is built below; the counter closure resolves it
	// lazily so template deletes can consult completion history.
	var completionService *completions.Service
	workoutService, err := workouts.NewService(workouts.ServiceConfig{
		Database: db,
		Catalog:  catalogService,
		Completions: func(ctx context.Context, workoutID uint) (int64, error) {
			return completionService.CountForWorkout(ctx, workoutID)
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	scheduleService, err := schedules.NewService(schedules.ServiceConfig{
		Database: db,
		Workouts: workoutService,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	completionService, err = completions.NewService(completions.ServiceConfig{
		Database:   db,
		Workouts:   workoutService,
		Clock:      time.Now,
		IDProvider: completions.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	calendarService, err := calendar.NewService(calendar.ServiceConfig{
		Schedules:   scheduleService,
		Completions: completionService,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Catalog:     catalogService,
		Workouts:    workoutService,
		Schedules:   scheduleService,
		Completions: completionService,
		Calendar:    calendarService,
		Dispatcher:  server.NewRealtimeDispatcher(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
