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

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/pilotforce/transfer/internal/stubserver"
)

type Config struct {
	Port          string `env:"PORT" env-default:"8080"`
	JWTSecret     string `env:"JWT_SECRET" env-default:""`
	SigningSecret string `env:"STORAGE_SIGNING_SECRET" env-default:"dev-signing-secret"`
	BaseURL       string `env:"BASE_URL" env-default:""`
	S3            S3Config
}

type S3Config struct {
	Bucket          string `env:"AWS_S3_BUCKET" env-default:""`
	Region          string `env:"AWS_S3_REGION" env-default:"us-east-1"`
	Endpoint        string `env:"AWS_S3_ENDPOINT" env-default:""`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" env-default:""`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" env-default:""`
	UsePathStyle    bool   `env:"AWS_S3_USE_PATH_STYLE" env-default:"true"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		logger.Error("failed to read environment", "err", err)
		os.Exit(1)
	}

	opts := []stubserver.Option{stubserver.WithLogger(logger)}
	if cfg.JWTSecret != "" {
		opts = append(opts, stubserver.WithJWTSecret(cfg.JWTSecret))
	}

	// An S3 bucket switches blob storage from the in-memory store to a
	// real bucket with genuine presigned URLs.
	if cfg.S3.Bucket != "" {
		store, err := stubserver.NewS3BlobStore(context.Background(), stubserver.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
		if err != nil {
			logger.Error("failed to initialize S3 blob store", "err", err)
			os.Exit(1)
		}
		opts = append(opts, stubserver.WithBlobStore(store))
		logger.Info("using S3 blob store", "bucket", cfg.S3.Bucket, "endpoint", cfg.S3.Endpoint)
	}

	server := stubserver.NewServer(cfg.SigningSecret, opts...)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%s", cfg.Port)
	}
	server.SetBaseURL(baseURL)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Handler(),
	}

	go func() {
		logger.Info("stub backend listening", "port", cfg.Port, "base_url", baseURL, "auth", cfg.JWTSecret != "")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "err", err)
	}
}
