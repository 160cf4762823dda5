// Command pzrcon serves RCON administration of Project Zomboid servers over
// HTTP and websockets.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cyberinferno/pzrcon/adminserver"
	"github.com/cyberinferno/pzrcon/broadcaster"
	"github.com/cyberinferno/pzrcon/cacher"
	"github.com/cyberinferno/pzrcon/config"
	"github.com/cyberinferno/pzrcon/credentials"
	"github.com/cyberinferno/pzrcon/logger"
	"github.com/cyberinferno/pzrcon/players"
	"github.com/cyberinferno/pzrcon/registry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	serversFile := flag.String("servers", "", "Override PZRCON_SERVERS_FILE")
	listenAddr := flag.String("listen", "", "Override PZRCON_LISTEN_ADDR")
	watch := flag.Bool("watch", true, "Reload the servers file when it changes")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *serversFile != "" {
		cfg.ServersFile = *serversFile
	}

	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	level, _ := cfg.Level()
	log := logger.NewZerologLogger(os.Stdout, cfg.ServiceName, level)

	if err := run(cfg, *watch, log); err != nil {
		log.Error("exiting", logger.Field{Key: "error", Value: err})
		os.Exit(1)
	}
}

func run(cfg config.Config, watch bool, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, err := credentials.OpenFile(cfg.ServersFile, log)
	if err != nil {
		return err
	}

	if watch {
		go func() {
			if err := source.Watch(ctx, nil); err != nil {
				log.Warn("servers file watch disabled", logger.Field{Key: "error", Value: err})
			}
		}()
	}

	maxPlayers, closeCache, err := newMaxPlayersCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()

	reg := registry.New(registry.Config{
		ConnectTimeout: cfg.ConnectTimeout,
		CommandTimeout: cfg.CommandTimeout,
		Logger:         log,
	})

	var audit adminserver.AuditSink = adminserver.NewLogAuditSink(log)
	if cfg.AuditWebhook != "" {
		audit = adminserver.MultiAuditSink{audit, adminserver.NewWebhookAuditSink(cfg.AuditWebhook, 0)}
	}

	svc := adminserver.NewService(adminserver.Config{
		Registry:    reg,
		Credentials: source,
		Broadcaster: broadcaster.New(log),
		Probe:       players.NewProbe(reg, maxPlayers, cfg.MaxPlayersTTL, log),
		Audit:       audit,
		Logger:      log,
	})
	defer svc.Shutdown()

	if cfg.AutoConnect {
		go func() {
			if err := svc.AutoConnect(ctx, source.AutoConnectIDs(), cfg.AutoConnectParallelism); err != nil {
				log.Warn("auto-connect incomplete", logger.Field{Key: "error", Value: err})
			}
		}()
	}

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: adminserver.NewHandler(svc, adminserver.HandlerConfig{
			ServiceName:      cfg.ServiceName,
			SinkWriteTimeout: cfg.SinkWriteTimeout,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", logger.Field{Key: "addr", Value: cfg.ListenAddr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// newMaxPlayersCache returns a Redis cache when REDIS_ADDR is set, otherwise
// an in-process one. The returned func releases the backend.
func newMaxPlayersCache(ctx context.Context, cfg config.Config, log logger.Logger) (cacher.Cacher[int], func(), error) {
	if cfg.RedisAddr == "" {
		return cacher.NewMemoryCacher[int](time.Minute), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}

	log.Info("using redis cache", logger.Field{Key: "addr", Value: cfg.RedisAddr})
	return cacher.NewRedisCacher[int](client, cfg.RedisKeyPrefix), func() { _ = client.Close() }, nil
}

