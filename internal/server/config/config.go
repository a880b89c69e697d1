// Package config handles configuration for the server component: defaults,
// then .env and FIELDAUTH_* environment variables, then an optional JSON
// file, then command-line flags. Later sources win.
package config

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/dmitrijs2005/fieldauth/internal/cryptox"
	"github.com/dmitrijs2005/fieldauth/internal/server/models"
	"golang.org/x/crypto/bcrypt"
)

// Token store backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds runtime settings for the fieldauth server.
//
// Fields:
//   - HTTPAddr / GRPCAddr: bind addresses; an empty GRPCAddr disables gRPC.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Required by the postgres backend and
//     used for the user directory of the redis backend when set.
//   - StoreBackend: one of memory, file, postgres, redis.
//   - TokenFile / UserFile: JSON documents of the file backend.
//   - AMQPURL: broker for outgoing notifications; empty logs them instead.
//   - SweepGrace: how long expired tokens are kept before the sweep purges them.
type Config struct {
	HTTPAddr     string
	GRPCAddr     string
	DatabaseDSN  string
	StoreBackend string
	TokenFile    string
	UserFile     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AMQPURL string

	SessionTTL           time.Duration
	EmailVerificationTTL time.Duration
	PasswordResetTTL     time.Duration
	BcryptCost           int

	SweepInterval time.Duration
	SweepGrace    time.Duration
	SweepBatch    int
	StoreTimeout  time.Duration

	LogLevel string
}

// LoadDefaults populates Config with development defaults.
// NOTE: the memory backend loses every token on restart; production
// deployments must select file, postgres or redis.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8080"
	c.GRPCAddr = ":50051"
	c.DatabaseDSN = ""
	c.StoreBackend = BackendMemory
	c.TokenFile = "data/tokens.json"
	c.UserFile = "data/users.json"
	c.RedisAddr = "127.0.0.1:6379"
	c.RedisPassword = ""
	c.RedisDB = 0
	c.AMQPURL = ""
	c.SessionTTL = 24 * time.Hour
	c.EmailVerificationTTL = 24 * time.Hour
	c.PasswordResetTTL = time.Hour
	c.BcryptCost = cryptox.DefaultPasswordCost
	c.SweepInterval = 5 * time.Minute
	c.SweepGrace = time.Hour
	c.SweepBatch = 500
	c.StoreTimeout = 5 * time.Second
	c.LogLevel = "info"
}

// TTLs returns the token lifetime per type.
func (c *Config) TTLs() map[models.TokenType]time.Duration {
	return map[models.TokenType]time.Duration{
		models.TokenTypeSession:           c.SessionTTL,
		models.TokenTypeEmailVerification: c.EmailVerificationTTL,
		models.TokenTypePasswordReset:     c.PasswordResetTTL,
	}
}

// Validate reports the first inconsistent setting as a common.ErrConfig.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendFile, BackendRedis:
	case BackendPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("%w: postgres backend needs a database DSN", common.ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", common.ErrConfig, c.StoreBackend)
	}
	if c.StoreBackend == BackendFile && (c.TokenFile == "" || c.UserFile == "") {
		return fmt.Errorf("%w: file backend needs token and user files", common.ErrConfig)
	}
	if c.StoreBackend == BackendRedis && c.RedisAddr == "" {
		return fmt.Errorf("%w: redis backend needs an address", common.ErrConfig)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("%w: http address is empty", common.ErrConfig)
	}
	for typ, ttl := range c.TTLs() {
		if ttl <= 0 {
			return fmt.Errorf("%w: %s ttl must be positive", common.ErrConfig, typ)
		}
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("%w: bcrypt cost %d out of range", common.ErrConfig, c.BcryptCost)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("%w: sweep interval must be positive", common.ErrConfig)
	}
	if c.SweepGrace < 0 {
		return fmt.Errorf("%w: sweep grace must not be negative", common.ErrConfig)
	}
	if c.SweepBatch <= 0 {
		return fmt.Errorf("%w: sweep batch must be positive", common.ErrConfig)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("%w: store timeout must be positive", common.ErrConfig)
	}
	return nil
}

// LoadConfig builds a Config by applying defaults, then the environment,
// then an optional JSON file and finally command-line flags. Malformed input
// panics, as for any other startup misconfiguration.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
