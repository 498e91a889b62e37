package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/governor/internal/authz"
	"github.com/wolfeidau/governor/internal/engine"
	"github.com/wolfeidau/governor/internal/logger"
	"github.com/wolfeidau/governor/internal/notify"
	memorystore "github.com/wolfeidau/governor/internal/store/memory"
	postgresstore "github.com/wolfeidau/governor/internal/store/postgres"
	"github.com/wolfeidau/governor/internal/telemetry"
)

// runtime is the engine and everything it was wired to for one command.
type runtime struct {
	engine  *engine.Engine
	closers []func(context.Context)
}

func (r *runtime) onClose(fn func(context.Context)) {
	r.closers = append(r.closers, fn)
}

// Close stops the dispatcher and releases connections in reverse order.
func (r *runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i](ctx)
	}
}

// setupLogging installs the process logger and returns a command tracker.
func setupLogging(ctx context.Context, globals *Globals, command string) (context.Context, func(error)) {
	l := logger.Setup(globals.Debug)
	log.Logger = l
	zerolog.DefaultContextLogger = &l
	return logger.Track(ctx, l, command)
}

func openRuntime(ctx context.Context, globals *Globals) (rt *runtime, err error) {
	rt = &runtime{}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	if globals.Tracing {
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{ServiceName: "governor", Version: globals.Version})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		} else {
			rt.onClose(func(ctx context.Context) {
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to shutdown telemetry")
				}
			})
		}
	}

	stores, err := openStores(ctx, rt, globals.Store)
	if err != nil {
		return rt, err
	}

	policy, err := authz.LoadPolicy(globals.Engine.PolicyFile)
	if err != nil {
		return rt, err
	}

	publisher, err := openDispatcher(ctx, rt, globals.Notify)
	if err != nil {
		return rt, err
	}

	rt.engine = engine.New(stores, engine.Options{
		Policy:             policy,
		Publisher:          publisher,
		MaxConflictRetries: globals.Engine.MaxConflictRetries,
		DeferApply:         globals.Engine.DeferApply,
	})
	return rt, nil
}

func openStores(ctx context.Context, rt *runtime, flags StoreFlags) (engine.Stores, error) {
	switch flags.StoreType {
	case "postgres":
		pg, err := postgresstore.Open(ctx, postgresConfig(flags.Postgres))
		if err != nil {
			return engine.Stores{}, fmt.Errorf("failed to open postgres stores: %w", err)
		}
		rt.onClose(func(context.Context) { pg.Close() })
		log.Info().Msg("Using PostgreSQL stores with shared connection pool")
		return engine.Stores{Hierarchy: pg.Hierarchy, Proposals: pg.Proposals, Meetings: pg.Meetings}, nil
	default:
		log.Info().Msg("Using in-memory stores")
		return engine.Stores{
			Hierarchy: memorystore.NewHierarchyStore(),
			Proposals: memorystore.NewProposalStore(),
			Meetings:  memorystore.NewMeetingStore(),
		}, nil
	}
}

func postgresConfig(flags PostgresFlags) *postgresstore.Config {
	return &postgresstore.Config{
		ConnString:      flags.ConnString,
		MaxConns:        flags.MaxConns,
		MinConns:        flags.MinConns,
		MaxConnLifetime: flags.MaxConnLifetime,
		MaxConnIdleTime: flags.MaxConnIdleTime,
		QueryTimeout:    flags.QueryTimeout,
		AutoMigrate:     flags.AutoMigrate,
	}
}

func openDispatcher(ctx context.Context, rt *runtime, flags NotifyFlags) (notify.Publisher, error) {
	var sinks []notify.Sink
	for _, name := range flags.Sinks {
		switch name {
		case "log":
			sinks = append(sinks, notify.LogSink{})
		case "nats":
			conn, err := notify.ConnectNATS(flags.NATSURL)
			if err != nil {
				return nil, err
			}
			rt.onClose(func(context.Context) { _ = conn.Drain() })
			sinks = append(sinks, notify.NewNATSSink(conn, flags.Prefix))
		case "redis":
			client, err := notify.NewRedisClient(ctx, flags.RedisURL)
			if err != nil {
				return nil, err
			}
			rt.onClose(func(context.Context) { _ = client.Close() })
			sinks = append(sinks, notify.NewRedisSink(client, flags.RedisStream, flags.RedisMaxLen))
		case "kafka":
			client, err := notify.NewKafkaClient(flags.KafkaBrokers)
			if err != nil {
				return nil, err
			}
			rt.onClose(func(context.Context) { client.Close() })
			sinks = append(sinks, notify.NewKafkaSink(client, flags.KafkaTopic))
		case "", "none":
		default:
			return nil, fmt.Errorf("unknown notification sink %q", name)
		}
	}
	if len(sinks) == 0 {
		return notify.NopPublisher{}, nil
	}

	d, err := notify.NewDispatcher(notify.DispatcherConfig{
		QueueSize:     flags.QueueSize,
		MaxBatchSize:  flags.BatchSize,
		FlushInterval: flags.FlushInterval,
	}, sinks...)
	if err != nil {
		return nil, err
	}
	// Stops before the sink connections close.
	rt.onClose(func(ctx context.Context) {
		if err := d.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("Notification dispatcher did not drain")
		}
	})
	return d, nil
}
