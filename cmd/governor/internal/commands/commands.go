package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

type Globals struct {
	Debug   bool
	Version string
	Tracing bool

	Store  StoreFlags
	Notify NotifyFlags
	Engine EngineFlags
}

// StoreFlags selects and configures the governance stores.
type StoreFlags struct {
	StoreType string        `help:"store type (memory or postgres)" default:"memory" env:"GOVERNOR_STORE_TYPE" enum:"memory,postgres"`
	Postgres  PostgresFlags `embed:"" prefix:"postgres-"`
}

type PostgresFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"10"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`
	QueryTimeout    time.Duration `help:"server-side statement timeout" default:"10s"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"GOVERNOR_POSTGRES_AUTO_MIGRATE"`
}

// NotifyFlags configures where change notifications are delivered.
type NotifyFlags struct {
	Sinks         []string      `help:"notification sinks (log, nats, redis, kafka)" default:"log" env:"GOVERNOR_NOTIFY_SINKS"`
	Prefix        string        `help:"subject and stream prefix" default:"governor"`
	NATSURL       string        `name:"nats-url" help:"NATS server URL" default:"nats://127.0.0.1:4222" env:"NATS_URL"`
	RedisURL      string        `name:"redis-url" help:"Redis URL" default:"redis://127.0.0.1:6379/0" env:"REDIS_URL"`
	RedisStream   string        `help:"Redis stream name" default:""`
	RedisMaxLen   int64         `help:"approximate Redis stream length cap" default:"10000"`
	KafkaBrokers  []string      `help:"Kafka seed brokers" default:"127.0.0.1:9092" env:"KAFKA_BROKERS"`
	KafkaTopic    string        `help:"Kafka topic" default:""`
	QueueSize     int           `help:"notifications buffered before dropping" default:"1024"`
	BatchSize     int           `help:"notifications per sink batch" default:"50"`
	FlushInterval time.Duration `help:"maximum wait before a partial batch is sent" default:"500ms"`
}

// EngineFlags tune the governance engine.
type EngineFlags struct {
	PolicyFile         string `help:"YAML permission policy merged over the defaults" default:"" env:"GOVERNOR_POLICY_FILE"`
	MaxConflictRetries uint   `help:"attempts after a concurrent modification" default:"4"`
	DeferApply         bool   `help:"leave approved proposals for apply-pending" default:"false"`
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
