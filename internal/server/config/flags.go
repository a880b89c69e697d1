package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/fieldauth/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     HTTP bind address (e.g., ":8080")
//	-g string     gRPC bind address; "" disables gRPC
//	-d string     PostgreSQL DSN
//	-b string     token store backend: memory, file, postgres, redis
//	-t string     token file of the file backend
//	-u string     user file of the file backend
//	-r string     redis address
//	-q string     AMQP URL for notifications
//	-s duration   session token TTL
//	-i duration   sweep interval
//	-l string     log level
//
// os.Args is first filtered down to these flags with flagx.FilterArgs so that
// flags meant for other components (such as -c) do not make parsing fail.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-d", "-b", "-t", "-u", "-r", "-q", "-s", "-i", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port to run server")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC address and port, empty to disable")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.StoreBackend, "b", config.StoreBackend, "token store backend")
	fs.StringVar(&config.TokenFile, "t", config.TokenFile, "token file")
	fs.StringVar(&config.UserFile, "u", config.UserFile, "user file")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.AMQPURL, "q", config.AMQPURL, "AMQP URL")
	fs.DurationVar(&config.SessionTTL, "s", config.SessionTTL, "session token TTL")
	fs.DurationVar(&config.SweepInterval, "i", config.SweepInterval, "sweep interval")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
