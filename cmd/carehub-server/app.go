package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/carehub/carehub/internal/config"
	"github.com/carehub/carehub/internal/domain/booking"
	"github.com/carehub/carehub/internal/domain/invoicing"
	"github.com/carehub/carehub/internal/domain/prescription"
	"github.com/carehub/carehub/internal/domain/tariff"
	"github.com/carehub/carehub/internal/platform/audit"
	"github.com/carehub/carehub/internal/platform/cache"
	"github.com/carehub/carehub/internal/platform/db"
	"github.com/carehub/carehub/internal/platform/metrics"
	"github.com/carehub/carehub/internal/platform/tracing"
)

const version = "0.1.0"

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Str("service", "carehub").Logger()
}

// app holds every long-lived dependency shared by the server and the CLI
// commands.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	pool     *pgxpool.Pool
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	redis    *cache.Redis
	kafka    *kgo.Client
	tracer   *tracing.Provider
	pingers  map[string]db.Pinger

	tariffs       *tariff.Service
	prescriptions *prescription.Service
	bookings      *booking.Service
	invoices      *invoicing.Service
}

func bootstrap(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, pingers: map[string]db.Pinger{}}

	a.tracer, err = tracing.Init(ctx, tracing.Config{
		ServiceName:    "carehub",
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
	})
	if err != nil {
		return nil, err
	}

	a.pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("connected to database")

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	var rowCache tariff.Cache = cache.NewMemory()
	if cfg.RedisURL != "" {
		a.redis, err = cache.NewRedis(ctx, cfg.RedisURL, "carehub:")
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		rowCache = a.redis
		a.pingers["redis"] = a.redis
		logger.Info().Msg("tariff cache backed by redis")
	} else {
		logger.Warn().Msg("REDIS_URL not set, tariff cache is in-process")
	}

	sinks := []audit.Sink{audit.NewLogSink(logger), audit.NewPGSink(a.pool)}
	if len(cfg.KafkaBrokers) > 0 {
		a.kafka, err = audit.NewKafkaClient(cfg.KafkaBrokers)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		sinks = append(sinks, audit.NewKafkaSink(a.kafka, cfg.AuditTopic, audit.DefaultBreakerConfig(), a.metrics))
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.AuditTopic).Msg("audit events published to kafka")
	}
	dispatcher := audit.NewDispatcher(logger, a.metrics, sinks...)
	txm := db.NewTxManager(a.pool)

	// Tariffs
	categories := tariff.NewCategoryRepoPG(a.pool)
	rows := tariff.NewCachedRowRepository(tariff.NewRowRepoPG(a.pool), rowCache, cfg.TariffCacheTTL, logger, a.metrics)
	importer := tariff.NewImporter(categories, rows, txm, logger, a.metrics).WithCache(rows).WithAudit(dispatcher)
	a.tariffs = tariff.NewService(categories, rows, tariff.NewResolver(rows), importer)

	// Prescriptions
	a.prescriptions = prescription.NewService(prescription.NewRepoPG(a.pool), a.tariffs)

	// Bookings
	a.bookings = booking.NewService(booking.Deps{
		Repo:          booking.NewRepoPG(a.pool),
		Prescriptions: a.prescriptions,
		Tariffs:       a.tariffs,
		Tx:            txm,
		Audit:         dispatcher,
		Logger:        logger.With().Str("component", "booking").Logger(),
		Metrics:       a.metrics,
		Location:      loc,
	})

	// Invoicing
	a.invoices = invoicing.NewService(invoicing.Deps{
		Repo:     invoicing.NewRepoPG(a.pool),
		Bookings: a.bookings,
		Tx:       txm,
		Audit:    dispatcher,
		Logger:   logger.With().Str("component", "invoicing").Logger(),
		Metrics:  a.metrics,
		Location: loc,
	})

	return a, nil
}

// close releases everything bootstrap opened, in reverse order.
func (a *app) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close redis")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("flush traces")
		}
	}
}
