package health

import (
	"context"
	"database/sql"
	"errors"
)

// SQLiteChecker checks SQLite database connectivity.
type SQLiteChecker struct {
	db *sql.DB
}

// NewSQLiteChecker creates a new SQLite health checker.
func NewSQLiteChecker(db *sql.DB) *SQLiteChecker {
	return &SQLiteChecker{db: db}
}

// Name returns the checker name.
func (c *SQLiteChecker) Name() string {
	return "sqlite"
}

// Check verifies the SQLite database is accessible.
func (c *SQLiteChecker) Check(ctx context.Context) error {
	if c.db == nil {
		return errors.New("database not initialized")
	}
	return c.db.PingContext(ctx)
}

// Pinger is a dependency that supports ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisChecker checks the cooldown claim store.
type RedisChecker struct {
	pinger Pinger
}

// NewRedisChecker creates a Redis health checker.
func NewRedisChecker(p Pinger) *RedisChecker {
	return &RedisChecker{pinger: p}
}

// Name returns the checker name.
func (c *RedisChecker) Name() string {
	return "redis"
}

// Check pings Redis.
func (c *RedisChecker) Check(ctx context.Context) error {
	if c.pinger == nil {
		return errors.New("redis not configured")
	}
	return c.pinger.Ping(ctx)
}

// MQTTChecker reports whether the telemetry subscriber is connected.
type MQTTChecker struct {
	connected func() bool
}

// NewMQTTChecker creates an MQTT health checker.
func NewMQTTChecker(connected func() bool) *MQTTChecker {
	return &MQTTChecker{connected: connected}
}

// Name returns the checker name.
func (c *MQTTChecker) Name() string {
	return "mqtt"
}

// Check fails while the broker connection is down.
func (c *MQTTChecker) Check(ctx context.Context) error {
	if c.connected == nil || !c.connected() {
		return errors.New("mqtt broker not connected")
	}
	return nil
}
