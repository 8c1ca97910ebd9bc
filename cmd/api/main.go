package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/alerting"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/auth"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/cloud"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/config"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/database"
	httpHandlers "github.com/ANIKETSHETTY47/water-quality-monitor/internal/http"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/ingest"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/live"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/repository"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if level, err := zerolog.ParseLevel(config.LogLevel()); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsConfig := sync.OnceValues(func() (aws.Config, error) {
		return cloud.LoadConfig(ctx, config.AWSRegion())
	})

	store, closeStore, err := openStore(ctx, awsConfig)
	if err != nil {
		log.Fatal().Err(err).Str("backend", config.StoreBackend()).Msg("store setup failed")
	}
	defer closeStore()

	var notifier service.Notifier = alerting.LogNotifier{}
	if arn := config.SNSTopicArn(); arn != "" {
		cfg, err := awsConfig()
		if err != nil {
			log.Fatal().Err(err).Msg("aws config failed")
		}
		notifier = cloud.NewSNSNotifier(sns.NewFromConfig(cfg), arn)
	}

	var archiver service.Archiver
	if bucket := config.S3Bucket(); bucket != "" {
		cfg, err := awsConfig()
		if err != nil {
			log.Fatal().Err(err).Msg("aws config failed")
		}
		archiver = cloud.NewS3Archiver(s3.NewFromConfig(cfg), bucket, nil)
	}

	if config.ResetPassword() == "" && config.ResetPasswordHash() == "" {
		log.Warn().Msg("no reset password configured; reset is disabled")
	}

	mon := service.New(service.Config{
		Store:         store,
		Notifier:      notifier,
		Archiver:      archiver,
		Authorizer:    auth.NewVerifier(config.ResetPassword(), config.ResetPasswordHash()),
		Alerter:       alerting.NewAlerter(config.SNSTopicArn(), config.AlertPriority()),
		DefaultDevice: config.DefaultDevice(),
		Timeout:       config.DownstreamTimeout(),
	})

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	httpHandlers.Register(app, mon)

	liveSrv := live.NewServer(config.LiveAddr(), live.NewRouter(mon))

	var sub *ingest.Subscriber
	if config.MQTTEnabled() {
		sub = ingest.NewSubscriber(config.MQTTBroker(), config.MQTTClientID(), config.MQTTTopic(), mon)
		if err := sub.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("mqtt connect")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", config.APIAddr()).Msg("api listening")
		return app.Listen(config.APIAddr())
	})
	g.Go(func() error {
		log.Info().Str("addr", config.LiveAddr()).Msg("live server listening")
		if err := liveSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		if sub != nil {
			sub.Stop()
		}

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(app.ShutdownWithContext(sctx), liveSrv.Shutdown(sctx))
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server exit")
	}

	// let background store writes and alerts finish
	mon.Wait()
	log.Info().Msg("shutdown complete")
}

func openStore(ctx context.Context, awsConfig func() (aws.Config, error)) (service.Store, func(), error) {
	switch config.StoreBackend() {
	case "postgres":
		db, err := database.Connect(config.DBDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("db connect failed: %w", err)
		}
		if err := database.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return repository.New(db), func() { db.Close() }, nil

	case "dynamodb":
		cfg, err := awsConfig()
		if err != nil {
			return nil, nil, err
		}
		return cloud.NewDynamoDBStore(dynamodb.NewFromConfig(cfg), config.DynamoTablePrefix()), func() {}, nil

	case "memory", "":
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return repository.NewMemory(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", config.StoreBackend())
	}
}
