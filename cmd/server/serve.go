package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/adi0301/item-lending/internal/adapter/activity"
	"github.com/adi0301/item-lending/internal/adapter/handler"
	"github.com/adi0301/item-lending/internal/adapter/storage"
	"github.com/adi0301/item-lending/internal/config"
	"github.com/adi0301/item-lending/internal/core/domain"
	"github.com/adi0301/item-lending/internal/core/service"
	"github.com/adi0301/item-lending/internal/metrics"
	"github.com/adi0301/item-lending/internal/port"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lending server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	level, ok := pslog.ParseLevel(cfg.LogLevel)
	if !ok {
		level = pslog.InfoLevel
	}
	logger := pslog.NewWithOptions(os.Stderr, pslog.Options{
		Mode:     pslog.ModeStructured,
		MinLevel: level,
	}).With("app", "lending-server")

	ctx := context.Background()

	// The single shared store: constructed once here, handed by reference to
	// every connection handler. Never a package-level singleton.
	inv := service.NewInventoryService(domain.DefaultCatalog())
	recorder := service.NewActivityRecorder(cfg.EventQueueSize, logger)

	var sinks []port.ActivitySink

	fileSink, err := activity.NewFileSink(cfg.ActivityLog)
	if err != nil {
		return err
	}
	defer fileSink.Close()
	sinks = append(sinks, fileSink)
	logger.Info("activity log open", "path", cfg.ActivityLog)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		sinks = append(sinks, storage.NewRedisAdapter(rdb))
		logger.Info("connected to redis", "address", cfg.RedisAddr)
	}

	if cfg.MySQLDSN != "" {
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return fmt.Errorf("connect mysql: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping mysql: %w", err)
		}
		defer db.Close()

		mysqlSink := storage.NewMySQLAdapter(db)
		if err := mysqlSink.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, mysqlSink)
		logger.Info("connected to mysql")
	}

	// Sink worker pool draining the activity queue.
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			sinkLoop(id, recorder.Queue(), sinks, logger)
		}(i)
	}
	logger.Info("started activity workers", "count", cfg.Workers)

	if cfg.MetricsListen != "" {
		metricsSrv, err := metrics.Serve(cfg.MetricsListen, logger)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	srv := handler.NewServer(cfg.Listen, handler.NewHandler(inv, recorder, logger), logger)
	if err := srv.Listen(); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("listening", "address", srv.Addr().String())

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", "error", err)
	}
	logger.Info("server stopped")

	// Connections are gone; drain the activity queue and stop the workers.
	recorder.Close()
	wg.Wait()
	logger.Info("activity workers stopped")
	return nil
}

// sinkLoop delivers each event to every sink. Sink failures are logged and
// never propagate: the activity log is best-effort by contract.
func sinkLoop(id int, queue <-chan domain.Event, sinks []port.ActivitySink, logger pslog.Logger) {
	for ev := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		for _, sink := range sinks {
			if err := sink.Record(ctx, ev); err != nil {
				logger.Warn("activity sink failed", "worker", id, "kind", string(ev.Kind), "error", err)
			}
		}
		cancel()
	}
}
