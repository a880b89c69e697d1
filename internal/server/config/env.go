package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by parseEnv.
const EnvPrefix = "FIELDAUTH_"

// envFile is loaded, if present, before the environment is read. Variables
// already set in the process environment take precedence over it.
var envFile = ".env"

// parseEnv overlays FIELDAUTH_* environment variables onto config.
//
//	FIELDAUTH_HTTP_ADDR, FIELDAUTH_GRPC_ADDR, FIELDAUTH_DATABASE_DSN,
//	FIELDAUTH_STORE_BACKEND, FIELDAUTH_TOKEN_FILE, FIELDAUTH_USER_FILE,
//	FIELDAUTH_REDIS_ADDR, FIELDAUTH_REDIS_PASSWORD, FIELDAUTH_REDIS_DB,
//	FIELDAUTH_AMQP_URL, FIELDAUTH_SESSION_TTL, FIELDAUTH_EMAIL_VERIFICATION_TTL,
//	FIELDAUTH_PASSWORD_RESET_TTL, FIELDAUTH_BCRYPT_COST, FIELDAUTH_SWEEP_INTERVAL,
//	FIELDAUTH_SWEEP_GRACE, FIELDAUTH_SWEEP_BATCH, FIELDAUTH_STORE_TIMEOUT,
//	FIELDAUTH_LOG_LEVEL
//
// Durations use Go syntax ("24h", "90s").
func parseEnv(config *Config) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(fmt.Errorf("load %s: %w", envFile, err))
	}

	envString(&config.HTTPAddr, "HTTP_ADDR")
	envString(&config.GRPCAddr, "GRPC_ADDR")
	envString(&config.DatabaseDSN, "DATABASE_DSN")
	envString(&config.StoreBackend, "STORE_BACKEND")
	envString(&config.TokenFile, "TOKEN_FILE")
	envString(&config.UserFile, "USER_FILE")
	envString(&config.RedisAddr, "REDIS_ADDR")
	envString(&config.RedisPassword, "REDIS_PASSWORD")
	envInt(&config.RedisDB, "REDIS_DB")
	envString(&config.AMQPURL, "AMQP_URL")
	envDuration(&config.SessionTTL, "SESSION_TTL")
	envDuration(&config.EmailVerificationTTL, "EMAIL_VERIFICATION_TTL")
	envDuration(&config.PasswordResetTTL, "PASSWORD_RESET_TTL")
	envInt(&config.BcryptCost, "BCRYPT_COST")
	envDuration(&config.SweepInterval, "SWEEP_INTERVAL")
	envDuration(&config.SweepGrace, "SWEEP_GRACE")
	envInt(&config.SweepBatch, "SWEEP_BATCH")
	envDuration(&config.StoreTimeout, "STORE_TIMEOUT")
	envString(&config.LogLevel, "LOG_LEVEL")
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
	}
	*dst = n
}

func envDuration(dst *time.Duration, key string) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
	}
	*dst = d
}
