// Command authgate-migrate applies or inspects the database schema.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/MrEthical07/authgate/internal/logger"
	"github.com/MrEthical07/authgate/store/postgres"
	"github.com/joho/godotenv"
)

func main() {
	command := flag.String("command", "up", "migrate command (up|status|down)")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	target := flag.Int64("target", 0, "target version for down command (optional)")
	envFile := flag.String("env", ".env", "dotenv file to load if present")
	flag.Parse()

	log := logger.New("migrate", slog.LevelInfo)
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Warn("dotenv not loaded", "file", *envFile, "error", err)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Error("missing required env variables: DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	switch *command {
	case "up":
		err = postgres.Migrate(ctx, db)
	case "status":
		err = postgres.Status(ctx, db)
	case "down":
		err = postgres.Down(ctx, db, *target)
	default:
		log.Error("unsupported command", "command", *command)
		os.Exit(1)
	}
	if err != nil {
		log.Error("migration command failed", "command", *command, "error", err)
		os.Exit(1)
	}

	log.Info("migration command completed", "command", *command)
}
