package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/fieldauth/internal/flagx"
	"github.com/dmitrijs2005/fieldauth/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations accept both Go
// duration strings ("5m") and integer nanoseconds. Absent or zero fields
// leave the current value untouched.
type JsonConfig struct {
	HTTPAddr             string         `json:"http_addr"`
	GRPCAddr             string         `json:"grpc_addr"`
	DatabaseDSN          string         `json:"database_dsn"`
	StoreBackend         string         `json:"store_backend"`
	TokenFile            string         `json:"token_file"`
	UserFile             string         `json:"user_file"`
	RedisAddr            string         `json:"redis_addr"`
	RedisPassword        string         `json:"redis_password"`
	RedisDB              int            `json:"redis_db"`
	AMQPURL              string         `json:"amqp_url"`
	SessionTTL           timex.Duration `json:"session_ttl"`
	EmailVerificationTTL timex.Duration `json:"email_verification_ttl"`
	PasswordResetTTL     timex.Duration `json:"password_reset_ttl"`
	BcryptCost           int            `json:"bcrypt_cost"`
	SweepInterval        timex.Duration `json:"sweep_interval"`
	SweepGrace           timex.Duration `json:"sweep_grace"`
	SweepBatch           int            `json:"sweep_batch"`
	StoreTimeout         timex.Duration `json:"store_timeout"`
	LogLevel             string         `json:"log_level"`
}

// parseJson loads the file named by -c/-config, if any, and overlays it onto
// config. An unreadable file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFileFlag()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}
	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.StoreBackend, c.StoreBackend)
	setString(&config.TokenFile, c.TokenFile)
	setString(&config.UserFile, c.UserFile)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setString(&config.AMQPURL, c.AMQPURL)
	setString(&config.LogLevel, c.LogLevel)

	if c.RedisDB != 0 {
		config.RedisDB = c.RedisDB
	}
	if c.BcryptCost != 0 {
		config.BcryptCost = c.BcryptCost
	}
	if c.SweepBatch != 0 {
		config.SweepBatch = c.SweepBatch
	}

	setDuration(&config.SessionTTL, c.SessionTTL)
	setDuration(&config.EmailVerificationTTL, c.EmailVerificationTTL)
	setDuration(&config.PasswordResetTTL, c.PasswordResetTTL)
	setDuration(&config.SweepInterval, c.SweepInterval)
	setDuration(&config.SweepGrace, c.SweepGrace)
	setDuration(&config.StoreTimeout, c.StoreTimeout)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
