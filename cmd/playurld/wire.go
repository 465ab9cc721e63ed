package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/playurl/access"
	"github.com/kbukum/playurl/auth/jwt"
	"github.com/kbukum/playurl/bootstrap"
	"github.com/kbukum/playurl/cache"
	"github.com/kbukum/playurl/component"
	"github.com/kbukum/playurl/database"
	"github.com/kbukum/playurl/encryption"
	"github.com/kbukum/playurl/kafka"
	"github.com/kbukum/playurl/kafka/consumer"
	"github.com/kbukum/playurl/kafka/producer"
	"github.com/kbukum/playurl/lifecycle"
	"github.com/kbukum/playurl/logger"
	"github.com/kbukum/playurl/observability"
	"github.com/kbukum/playurl/playback"
	"github.com/kbukum/playurl/redis"
	"github.com/kbukum/playurl/server"
	"github.com/kbukum/playurl/server/middleware"
	"github.com/kbukum/playurl/signedurl"
	"github.com/kbukum/playurl/storage"
	"github.com/kbukum/playurl/storage/local"
	_ "github.com/kbukum/playurl/storage/s3"
)

// wiring holds the infrastructure components registered before startup and
// the telemetry providers that must be flushed on shutdown.
type wiring struct {
	app *bootstrap.App[*Config]

	redis    *redis.Component
	database *database.Component
	storage  *storage.Component

	tracer *sdktrace.TracerProvider
	meter  *sdkmetric.MeterProvider
}

func newWiring(app *bootstrap.App[*Config]) (*wiring, error) {
	cfg := app.Cfg
	w := &wiring{
		app:      app,
		redis:    redis.NewComponent(cfg.Redis, app.Logger),
		database: database.NewComponent(cfg.Database, app.Logger),
		storage:  storage.NewComponent(cfg.Storage.Config, cfg.Storage.ProviderConfig(), storage.Deps{Log: app.Logger}),
	}
	for _, c := range []component.Component{w.redis, w.database, w.storage} {
		if err := app.RegisterComponent(c); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *wiring) initTelemetry(ctx context.Context) error {
	cfg := w.app.Cfg
	obs := cfg.Observability
	if obs.TracingEnabled {
		tp, err := observability.InitTracer(ctx, observability.TracerConfigFrom(obs, cfg.Name, w.app.Version, cfg.Environment))
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		w.tracer = tp
	}
	if obs.MetricsEnabled {
		mc := observability.MeterConfigFrom(obs, cfg.Name, w.app.Version, cfg.Environment)
		mp, err := observability.InitMeter(ctx, &mc)
		if err != nil {
			return fmt.Errorf("init meter: %w", err)
		}
		w.meter = mp
	}
	return nil
}

func (w *wiring) shutdownTelemetry(ctx context.Context) error {
	var errs []error
	if w.tracer != nil {
		errs = append(errs, w.tracer.Shutdown(ctx))
	}
	if w.meter != nil {
		errs = append(errs, w.meter.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// configure builds the signing and lifecycle layers on the started
// infrastructure, then starts the components that depend on them: Kafka,
// the lifecycle runner and finally the HTTP server.
func (w *wiring) configure(ctx context.Context, app *bootstrap.App[*Config]) error {
	cfg := app.Cfg
	log := app.Logger

	store := database.NewTrackStore(w.database.DB())
	gate := access.NewGate(store, log)
	objects := w.storage.Storage()

	urls, err := w.signedURLs(cfg, gate, objects, log)
	if err != nil {
		return err
	}

	var (
		prod *producer.Producer
		pub  lifecycle.Publisher
	)
	if cfg.Kafka.Enabled {
		prod, err = producer.NewProducer(cfg.Kafka, log)
		if err != nil {
			return err
		}
		pub = prod
	}

	lifecycleMetrics, err := observability.NewLifecycleMetrics(observability.Meter("playurl/lifecycle"))
	if err != nil {
		return fmt.Errorf("lifecycle metrics: %w", err)
	}
	proc, err := lifecycle.NewProcessor(cfg.Lifecycle, store, objects, urls, pub, log, lifecycle.WithMetrics(lifecycleMetrics))
	if err != nil {
		return err
	}
	runner := lifecycle.NewRunner(proc, redis.NewDelayQueue(w.redis.Client(), cfg.Lifecycle.QueueKey), log)

	// Without a broker, deletions are parked straight on the delay queue.
	var notifier lifecycle.Notifier = runner
	if prod != nil {
		notifier = lifecycle.NewKafkaNotifier(prod, cfg.Lifecycle.NoticeTopic)
	}
	announcer := lifecycle.NewAnnouncer(store, urls, notifier, nil, log)

	if prod != nil {
		kc := kafka.NewComponent(cfg.Kafka, log)
		kc.SetProducer(prod)
		if cfg.Lifecycle.Enabled {
			notices, err := consumer.NewConsumer(cfg.Kafka, cfg.Lifecycle.NoticeTopic, log)
			if err != nil {
				return err
			}
			kc.AddConsumer(consumer.AsRunner(notices, runner.HandleMessage))
		}
		if err := app.StartComponent(ctx, kc); err != nil {
			return err
		}
	}
	if cfg.Lifecycle.Enabled {
		if err := app.StartComponent(ctx, runner); err != nil {
			return err
		}
	} else {
		log.Info("Lifecycle processing disabled on this instance; deletions are only announced")
	}

	srv, err := w.httpServer(cfg, urls, gate, announcer, objects, log)
	if err != nil {
		return err
	}
	return app.StartComponent(ctx, server.NewComponent(srv))
}

func (w *wiring) signedURLs(cfg *Config, gate *access.Gate, signer storage.Signer, log *logger.Logger) (*signedurl.Service, error) {
	metrics, err := observability.NewSignedURLMetrics(observability.Meter("playurl/signedurl"))
	if err != nil {
		return nil, fmt.Errorf("signedurl metrics: %w", err)
	}

	opts := []cache.Option{cache.WithRecorder(metrics)}
	if cfg.Encryption.Enabled {
		enc, err := encryption.New(cfg.Encryption)
		if err != nil {
			return nil, err
		}
		opts = append(opts, cache.WithCodec(cache.EncryptedCodec(enc)))
	}
	urlCache := cache.New[signedurl.Record](redis.NewBackend(w.redis.Client()), cfg.SignedURL.Cache, log, opts...)
	return signedurl.New(cfg.SignedURL, gate, signer, urlCache, log, signedurl.WithMetrics(metrics))
}

func (w *wiring) httpServer(cfg *Config, urls *signedurl.Service, gate *access.Gate, deleter playback.Deleter, objects storage.Storage, log *logger.Logger) (*server.Server, error) {
	srv := server.New(cfg.Server, log)
	srv.ApplyDefaults(cfg.Name, w.app.Components.HealthAll,
		func(context.Context) (string, any) { return "inflight_locks", urls.InFlight() },
		func(context.Context) (string, any) { return "generator_breaker", urls.BreakerState().String() },
	)

	if loc, ok := objects.(*local.Storage); ok {
		if err := mountLocalMedia(srv, cfg.Storage.Local.BaseURL, loc); err != nil {
			return nil, err
		}
	}

	authCfg := middleware.AuthConfig{Log: log}
	if cfg.Auth.Enabled {
		tokens, err := jwt.NewService(&cfg.Auth.JWT, jwt.NewClaims)
		if err != nil {
			return nil, err
		}
		authCfg.Subject = tokens.Subject
	} else {
		log.Warn("Authentication disabled, trusting the " + middleware.HeaderCallerID + " header")
	}

	requests, err := observability.NewRequestMetrics(observability.Meter("playurl/http"))
	if err != nil {
		return nil, fmt.Errorf("request metrics: %w", err)
	}

	api := srv.GinEngine().Group("",
		middleware.Metrics(requests),
		middleware.Auth(authCfg),
		middleware.RateLimit(cfg.Server.RateLimit, middleware.CallerKey, nil),
	)
	playback.NewHandler(urls, gate, deleter, cfg.SignedURL.HideForbidden, log).Register(api)
	return srv, nil
}

// mountLocalMedia serves local signed URLs under the path of baseURL.
func mountLocalMedia(srv *server.Server, baseURL string, loc *local.Storage) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("storage.local.base_url: %w", err)
	}
	prefix := strings.TrimRight(u.Path, "/")
	if prefix == "" {
		return fmt.Errorf("storage.local.base_url must carry a path such as /media, got %q", baseURL)
	}
	srv.Handle(prefix+"/", http.StripPrefix(prefix, loc.Handler()))
	return nil
}
