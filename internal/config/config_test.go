package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/fitbook/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	c := Load()
	assert.Equal(t, "memory", c.StoreDriver)
	assert.Equal(t, "local", c.LockDriver)
	assert.Equal(t, "log", c.NotifyDriver)
	assert.Equal(t, time.Minute, c.Engine.SweepInterval)
	assert.Equal(t, 5, c.Engine.NegotiationMaxRounds)
}

func TestLoadMySQLOptions(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "mysql")
	t.Setenv("DB_USER", "fit")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "fitbook")
	t.Setenv("DB_MAX_OPEN_CONNS", "10")
	t.Setenv("DB_CONN_MAX_LIFETIME", "5m")
	t.Setenv("DB_MIGRATE", "false")

	c := Load()
	assert.Equal(t, "fit", c.DB.User)
	assert.Equal(t, "db", c.DB.Host)
	assert.Equal(t, 10, c.DB.MaxOpenConns)
	assert.Equal(t, 25, c.DB.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, c.DB.ConnMaxLifetime)
	assert.Equal(t, 5*time.Second, c.DB.PingTimeout)
	assert.False(t, c.DB.Migrate)
}

func TestEngineConfigOverrides(t *testing.T) {
	t.Setenv("GRACE_CLASS", "12h")
	t.Setenv("REMINDER_INTERVAL", "2h")
	t.Setenv("NEGOTIATION_MAX_ROUNDS", "0")
	t.Setenv("CANCEL_NOTICE_STRICT", "72h")
	t.Setenv("PROPOSAL_TTL", "not-a-duration")

	cfg := LoadEngineConfig().Booking()
	assert.Equal(t, 12*time.Hour, cfg.Policy.GraceFor(model.KindClass))
	assert.Equal(t, 48*time.Hour, cfg.Policy.GraceFor(model.KindPrivate))
	assert.Equal(t, 2*time.Hour, cfg.Policy.Reminders.Interval)
	assert.Zero(t, cfg.MaxRounds)
	assert.Equal(t, 48*time.Hour, cfg.ProposalTTL)
	require.Contains(t, cfg.CancelNotice, model.CancelStrict)
	assert.Equal(t, 72*time.Hour, cfg.CancelNotice[model.CancelStrict])
	assert.Zero(t, cfg.CancelNotice[model.CancelFlexible])
}

func TestRateLimitClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1m")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	rl := LoadRateLimitConfig()
	assert.Equal(t, 1, rl.Capacity)
	assert.Equal(t, 5*time.Minute, rl.TTL)
}

func TestParseMethods(t *testing.T) {
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, parseMethods(" get, head ,,"))
}
