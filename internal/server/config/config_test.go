package config

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/dmitrijs2005/fieldauth/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, ":50051", c.GRPCAddr)
	assert.Equal(t, BackendMemory, c.StoreBackend)
	assert.Equal(t, 24*time.Hour, c.SessionTTL)
	assert.Equal(t, 24*time.Hour, c.EmailVerificationTTL)
	assert.Equal(t, time.Hour, c.PasswordResetTTL)
	assert.Equal(t, 12, c.BcryptCost)
	assert.Equal(t, 5*time.Minute, c.SweepInterval)
	assert.Equal(t, 500, c.SweepBatch)
	assert.NoError(t, c.Validate())
}

func TestTTLs(t *testing.T) {
	var c Config
	c.LoadDefaults()
	ttls := c.TTLs()
	assert.Len(t, ttls, len(models.TokenTypes))
	assert.Equal(t, time.Hour, ttls[models.TokenTypePasswordReset])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(c *Config) {}, ok: true},
		{name: "unknown backend", mutate: func(c *Config) { c.StoreBackend = "etcd" }},
		{name: "postgres without dsn", mutate: func(c *Config) { c.StoreBackend = BackendPostgres }},
		{name: "postgres with dsn", mutate: func(c *Config) {
			c.StoreBackend = BackendPostgres
			c.DatabaseDSN = "postgres://localhost/fieldauth"
		}, ok: true},
		{name: "file without path", mutate: func(c *Config) {
			c.StoreBackend = BackendFile
			c.TokenFile = ""
		}},
		{name: "redis without address", mutate: func(c *Config) {
			c.StoreBackend = BackendRedis
			c.RedisAddr = ""
		}},
		{name: "zero ttl", mutate: func(c *Config) { c.PasswordResetTTL = 0 }},
		{name: "bcrypt cost too high", mutate: func(c *Config) { c.BcryptCost = 40 }},
		{name: "no sweep interval", mutate: func(c *Config) { c.SweepInterval = 0 }},
		{name: "negative grace", mutate: func(c *Config) { c.SweepGrace = -time.Second }},
		{name: "zero batch", mutate: func(c *Config) { c.SweepBatch = 0 }},
		{name: "zero store timeout", mutate: func(c *Config) { c.StoreTimeout = 0 }},
		{name: "grpc disabled", mutate: func(c *Config) { c.GRPCAddr = "" }, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.LoadDefaults()
			tt.mutate(&c)
			err := c.Validate()
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, common.ErrConfig)
		})
	}
}
