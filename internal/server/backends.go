package server

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/geo-ingest/internal/config"
	"github.com/JakeFAU/geo-ingest/internal/ingest"
	"github.com/JakeFAU/geo-ingest/internal/inspect/source"
	"github.com/JakeFAU/geo-ingest/internal/progress"
	progresssinks "github.com/JakeFAU/geo-ingest/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/geo-ingest/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/geo-ingest/internal/publisher/pubsub"
	rabbitpublisher "github.com/JakeFAU/geo-ingest/internal/publisher/rabbitmq"
	queueMemory "github.com/JakeFAU/geo-ingest/internal/queue/memory"
	pubsubqueue "github.com/JakeFAU/geo-ingest/internal/queue/pubsub"
	rabbitqueue "github.com/JakeFAU/geo-ingest/internal/queue/rabbitmq"
	"github.com/JakeFAU/geo-ingest/internal/status"
	statusmemory "github.com/JakeFAU/geo-ingest/internal/status/memory"
	statusredis "github.com/JakeFAU/geo-ingest/internal/status/redis"
	gcsstorage "github.com/JakeFAU/geo-ingest/internal/storage/gcs"
	localstorage "github.com/JakeFAU/geo-ingest/internal/storage/local"
	memoryStorage "github.com/JakeFAU/geo-ingest/internal/storage/memory"
	"github.com/JakeFAU/geo-ingest/internal/storage/postgis"
	s3storage "github.com/JakeFAU/geo-ingest/internal/storage/s3"
)

// memoryStatusHistory bounds the status messages kept by the memory broker.
const memoryStatusHistory = 1024

// setupStorage builds the source resolver and the hosted blob store.
func setupStorage(ctx context.Context, app *App) (*source.Resolver, ingest.BlobStore, error) {
	cfg := app.cfg
	resolver := source.NewResolver()

	var shared *localstorage.BlobStore
	if cfg.Storage.LocalDir != "" {
		var err error
		shared, err = localstorage.New(localstorage.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return nil, nil, fmt.Errorf("shared folder init failed: %w", err)
		}
		resolver.Register(ingest.LocationFolderShared, shared)
		app.logger.Debug("shared folder source", zap.String("path", cfg.Storage.LocalDir))
	}

	var gcsStore *gcsstorage.BlobStore
	if cfg.Storage.Backend == config.BackendGCS || cfg.GCS.Enabled {
		bucket := cfg.SourceBucket(config.BackendGCS)
		if cfg.Storage.Backend == config.BackendGCS {
			bucket = cfg.Storage.Bucket
		}
		var opts []option.ClientOption
		if cfg.GCS.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.GCS.Endpoint), option.WithoutAuthentication())
		}
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		gcsStore, err = gcsstorage.New(client, gcsstorage.Config{Bucket: bucket})
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.onClose("gcs", func(context.Context) error { return gcsStore.Close() })
		resolver.Register(ingest.LocationGCS, gcsStore)
		app.logger.Info("GCS storage enabled", zap.String("bucket", bucket))
	}

	var s3Store *s3storage.BlobStore
	if cfg.Storage.Backend == config.BackendS3 || cfg.S3.Enabled {
		bucket := cfg.SourceBucket(config.BackendS3)
		if cfg.Storage.Backend == config.BackendS3 {
			bucket = cfg.Storage.Bucket
		}
		var err error
		s3Store, err = s3storage.New(ctx, s3storage.Config{
			Bucket:          bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			MaxRetries:      cfg.S3.MaxRetries,
			Timeout:         cfg.S3.Timeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("s3 blob store init failed: %w", err)
		}
		resolver.Register(ingest.LocationS3, s3Store)
		app.logger.Info("S3 storage enabled", zap.String("bucket", bucket), zap.String("region", cfg.S3.Region))
	}

	var hosted ingest.BlobStore
	switch cfg.Storage.Backend {
	case config.BackendGCS:
		hosted = gcsStore
	case config.BackendS3:
		hosted = s3Store
	case config.BackendLocal:
		if shared == nil {
			return nil, nil, fmt.Errorf("local storage requires storage.local_dir")
		}
		hosted = shared
	default:
		app.logger.Info("using in-memory hosted storage")
		hosted = memoryStorage.NewBlobStore(ingest.LocationFolderShared, "")
	}
	return resolver, hosted, nil
}

// setupFeatureStore connects to PostGIS. Without a DSN the returned store is
// nil and persisting vector data fails with a persistence error.
func setupFeatureStore(ctx context.Context, app *App) (ingest.FeatureStore, error) {
	cfg := app.cfg.PostGIS
	if cfg.DSN == "" {
		app.logger.Warn("no postgis.dsn configured; vector persistence disabled")
		return nil, nil
	}
	store, err := postgis.New(ctx, postgis.Config{
		DSN:             cfg.DSN,
		Schema:          cfg.Schema,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("postgis init failed: %w", err)
	}
	app.onClose("postgis", func(context.Context) error {
		store.Close()
		return nil
	})
	app.checks["postgis"] = store.Ping
	app.postgis = store
	app.logger.Info("postgis feature store initialized", zap.String("schema", cfg.Schema))
	return store, nil
}

func setupLedger(app *App, clock ingest.Clock) (status.Ledger, error) {
	cfg := app.cfg
	if cfg.Status.Backend != config.BackendRedis {
		app.logger.Info("using in-memory status ledger")
		return statusmemory.New(clock), nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	app.onClose("redis", func(context.Context) error { return client.Close() })
	ledger, err := statusredis.New(client, clock, statusredis.Config{
		KeyPrefix: cfg.Redis.KeyPrefix,
		TTL:       cfg.Status.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("redis ledger init failed: %w", err)
	}
	app.checks["redis"] = ledger.Ping
	app.logger.Info("redis status ledger initialized", zap.Strings("addrs", cfg.Redis.Addrs))
	return ledger, nil
}

func setupBroker(ctx context.Context, app *App) (brokerSet, error) {
	switch app.cfg.Broker.Backend {
	case config.BackendPubSub:
		return setupPubSub(ctx, app)
	case config.BackendRabbitMQ:
		return setupRabbitMQ(app)
	default:
		q := queueMemory.NewQueue(app.cfg.Broker.QueueDepth)
		app.onClose("memory queue", func(context.Context) error {
			q.Close()
			return nil
		})
		app.logger.Warn("using in-memory broker; jobs do not survive restarts")
		return brokerSet{
			jobs:   q,
			status: memorypublisher.NewBounded(memoryStatusHistory),
			submit: q,
		}, nil
	}
}

func setupPubSub(ctx context.Context, app *App) (brokerSet, error) {
	cfg := app.cfg
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return brokerSet{}, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.onClose("pubsub client", func(context.Context) error { return client.Close() })

	statusPub := client.Publisher(cfg.Broker.Status)
	app.onClose("pubsub status publisher", func(context.Context) error {
		statusPub.Stop()
		return nil
	})
	set := brokerSet{status: gcppublisher.New(statusPub)}

	if cfg.Broker.Jobs != "" {
		jobsPub := client.Publisher(cfg.Broker.Jobs)
		app.onClose("pubsub jobs publisher", func(context.Context) error {
			jobsPub.Stop()
			return nil
		})
		set.submit = gcppublisher.New(jobsPub)
	}

	app.pubsubQueue = pubsubqueue.New(
		client.Subscriber(cfg.Broker.JobsSubscription),
		cfg.Prefetch(),
		app.logger.Named("pubsub_queue"),
	)
	set.jobs = app.pubsubQueue
	app.logger.Info("Pub/Sub broker initialized",
		zap.String("project", cfg.PubSub.ProjectID),
		zap.String("subscription", cfg.Broker.JobsSubscription),
		zap.String("status_topic", cfg.Broker.Status),
	)
	return set, nil
}

func setupRabbitMQ(app *App) (brokerSet, error) {
	cfg := app.cfg
	conn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		return brokerSet{}, fmt.Errorf("rabbitmq dial failed: %w", err)
	}
	app.onClose("rabbitmq connection", func(context.Context) error { return conn.Close() })

	q, err := rabbitqueue.New(conn, rabbitqueue.Config{
		Queue:       cfg.Broker.Jobs,
		ConsumerTag: cfg.RabbitMQ.ConsumerTag,
		Prefetch:    cfg.Prefetch(),
	})
	if err != nil {
		return brokerSet{}, fmt.Errorf("rabbitmq queue init failed: %w", err)
	}
	app.onClose("rabbitmq queue", func(context.Context) error { return q.Close() })

	statusPub, err := rabbitpublisher.New(conn, rabbitpublisher.Config{
		Exchange:   cfg.Broker.Status,
		RoutingKey: cfg.RabbitMQ.StatusRoutingKey,
	})
	if err != nil {
		return brokerSet{}, fmt.Errorf("rabbitmq status publisher init failed: %w", err)
	}
	app.onClose("rabbitmq status publisher", func(context.Context) error { return statusPub.Close() })

	jobsPub, err := rabbitpublisher.New(conn, rabbitpublisher.Config{RoutingKey: cfg.Broker.Jobs})
	if err != nil {
		return brokerSet{}, fmt.Errorf("rabbitmq jobs publisher init failed: %w", err)
	}
	app.onClose("rabbitmq jobs publisher", func(context.Context) error { return jobsPub.Close() })

	app.checks["rabbitmq"] = func(context.Context) error {
		if conn.IsClosed() {
			return fmt.Errorf("connection closed")
		}
		return nil
	}
	app.logger.Info("RabbitMQ broker initialized",
		zap.String("queue", cfg.Broker.Jobs),
		zap.String("status_exchange", cfg.Broker.Status),
	)
	return brokerSet{jobs: q, status: statusPub, submit: jobsPub}, nil
}

func setupProgress(ctx context.Context, app *App) (progress.Emitter, error) {
	cfg := app.cfg.Progress
	if !cfg.Enabled {
		app.logger.Info("progress tracking disabled")
		return progress.Discard, nil
	}
	var sinkList []progress.Sink
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	var already prometheus.AlreadyRegisteredError
	switch {
	case err == nil:
		sinkList = append(sinkList, promSink)
	case errors.As(err, &already):
		app.logger.Warn("progress collectors already registered; prometheus sink skipped")
	default:
		return nil, fmt.Errorf("progress prometheus sink init failed: %w", err)
	}
	if cfg.LogEvents {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
	}
	if cfg.RecordRuns {
		if app.postgis == nil {
			app.logger.Warn("progress.record_runs needs postgis.dsn; job runs not recorded")
		} else {
			runs, err := app.postgis.RunStore(ctx)
			if err != nil {
				return nil, fmt.Errorf("job run store init failed: %w", err)
			}
			sinkList = append(sinkList, progresssinks.NewRunSink(runs, app.logger.Named("progress_runs")))
		}
	}
	hubCfg := progress.Config{
		BufferSize:     cfg.BufferSize,
		MaxBatchEvents: cfg.BatchMaxEvents,
		MaxBatchWait:   cfg.BatchMaxWait,
		SinkTimeout:    cfg.SinkTimeout,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.onClose("progress hub", app.progressHub.Close)
	app.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Bool("log_events", cfg.LogEvents),
		zap.Bool("record_runs", cfg.RecordRuns),
	)
	return app.progressHub, nil
}
