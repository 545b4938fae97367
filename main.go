package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/facerecog/internal/config"
	"github.com/example/facerecog/internal/handlers"
	"github.com/example/facerecog/internal/logging"
	"github.com/example/facerecog/internal/repository"
	"github.com/example/facerecog/internal/storage"
	"github.com/example/facerecog/internal/usecase"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "facerecog: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		host       string
		port       int
		storageDir string
		profileDir string
		liveDir    string
		sniff      bool
	)

	cmd := &cobra.Command{
		Use:   "facerecog",
		Short: "Profile and live photo upload service",
		Long: `facerecog accepts a profile photo and a live-captured photo over HTTP,
validates their image type and stores them under timestamped names.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("host") {
				cfg.Host = host
			}
			if flags.Changed("port") {
				cfg.Port = port
			}
			if flags.Changed("storage-dir") {
				cfg.StorageDir = storageDir
			}
			if flags.Changed("profile-dir") {
				cfg.ProfileDir = profileDir
			}
			if flags.Changed("live-dir") {
				cfg.LiveDir = liveDir
			}
			if flags.Changed("sniff") {
				cfg.SniffContent = sniff
			}
			if err := cfg.Finalize(); err != nil {
				return err
			}

			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&host, "host", "0.0.0.0", "Interface to bind (FACERECOG_HOST)")
	flags.IntVarP(&port, "port", "p", 5001, "Port to listen on (FACERECOG_PORT)")
	flags.StringVar(&storageDir, "storage-dir", "", "Base directory for image folders (FACERECOG_STORAGE_DIR)")
	flags.StringVar(&profileDir, "profile-dir", "", "Directory for profile photos (FACERECOG_PROFILE_DIR)")
	flags.StringVar(&liveDir, "live-dir", "", "Directory for live photos (FACERECOG_LIVE_DIR)")
	flags.BoolVar(&sniff, "sniff", false, "Verify image bytes in addition to the declared type (FACERECOG_SNIFF_CONTENT)")
	return cmd
}

func run(cfg *config.Config) error {
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var repo usecase.UploadRepository
	if cfg.DatabaseDSN != "" {
		db, err := initDatabase(ctx, cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		uploadRepo := repository.NewUploadRepository(db, logger)
		if err := uploadRepo.AutoMigrate(ctx); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		repo = uploadRepo
		logger.Info("upload audit log enabled")
	}

	var cache usecase.Cache
	if cfg.RedisAddr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		defer redisCancel()
		client, err := initRedis(redisCtx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer client.Close()
		cache = usecase.NewRedisCache(client)
		logger.Info("upload cache enabled", zap.String("addr", cfg.RedisAddr))
	}

	store := storage.NewLocalStore(cfg.ProfileDir, cfg.LiveDir, logger)
	if err := store.EnsureDirectories(); err != nil {
		return err
	}

	uc := usecase.NewUploadUseCase(store, repo, cache, logger, usecase.WithContentSniffing(cfg.SniffContent))

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), logging.GinMiddleware(logger))
	handlers.RegisterRoutes(r, handlers.NewHandler(uc, logger, cfg.MaxUploadBytes))

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("upload service listening",
		zap.String("addr", cfg.Addr()),
		zap.String("profile_dir", cfg.ProfileDir),
		zap.String("live_dir", cfg.LiveDir),
		zap.Bool("sniff_content", cfg.SniffContent))
	return serveHTTPServer(server, cfg.ShutdownTimeout, logger)
}

func initDatabase(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping: %w", err)
	}

	return db, nil
}

func initRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection: %w", err)
	}
	return client, nil
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
