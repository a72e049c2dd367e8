// Package main implements a one-shot seed command that creates an admin user
// directly in the Parabase control-plane database. It lives inside the server
// module so it can access internal/* packages.
//
// Usage:
//
//	go run ./cmd/seed \
//	  --email admin@example.com \
//	  --password secret \
//	  --name "Admin User" \
//	  --role admin
//
// Environment variables:
//
//	PARABASE_DB_HOST / PORT / NAME / USER / PASSWORD  Control-plane database
//	PARABASE_MASTER_KEY  Master encryption key — must match the server's
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/parabase-io/parabase/internal/auth"
	"github.com/parabase-io/parabase/internal/config"
	"github.com/parabase-io/parabase/internal/crypto"
	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/repositories"
	"github.com/parabase-io/parabase/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	email := flag.String("email", "", "User email (required)")
	password := flag.String("password", "", "Plain-text password (required)")
	name := flag.String("name", "Admin User", "Display name")
	role := flag.String("role", "admin", "Role: admin or operator")
	flag.Parse()

	if *email == "" {
		return fmt.Errorf("--email is required")
	}
	if len(*password) < 8 {
		return fmt.Errorf("--password must be at least 8 characters")
	}
	if *role != "admin" && *role != "operator" {
		return fmt.Errorf("--role must be 'admin' or 'operator'")
	}

	dbCfg := config.Database{
		Host:     envOrDefault("PARABASE_DB_HOST", "localhost"),
		Port:     envIntOrDefault("PARABASE_DB_PORT", 5432),
		Name:     envOrDefault("PARABASE_DB_NAME", "parabase"),
		User:     envOrDefault("PARABASE_DB_USER", "parabase"),
		Password: envOrDefault("PARABASE_DB_PASSWORD", ""),
	}

	secret := os.Getenv("PARABASE_MASTER_KEY")
	if secret == "" {
		return fmt.Errorf(
			"PARABASE_MASTER_KEY is not set\n" +
				"  Set it to the same value used by the server, otherwise\n" +
				"  encrypted fields will be unreadable at runtime.",
		)
	}

	// InitEncryption must be called before any DB operation so that
	// EncryptedString fields are encoded correctly on write.
	masterKey, err := crypto.DeriveMasterKey(secret)
	if err != nil {
		return err
	}
	if err := db.InitEncryption(masterKey); err != nil {
		return fmt.Errorf("init encryption: %w", err)
	}

	logger, _ := zap.NewDevelopment()

	database, err := db.New(db.Config{
		DSN:      dbCfg.DSN(dbCfg.Name, dbCfg.User, dbCfg.Password),
		Logger:   logger,
		LogLevel: gormlogger.Silent, // suppress GORM query logs in seed output
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	hashed, err := auth.HashPassword(*password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	store := repository.NewStore(database)

	user := &db.User{
		Email:        *email,
		DisplayName:  *name,
		PasswordHash: hashed,
		Role:         *role,
		IsActive:     true,
	}

	if err := store.Users().Create(context.Background(), user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return fmt.Errorf("a user with email %q already exists", *email)
		}
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Printf("✓ User created\n")
	fmt.Printf("  ID:    %s\n", user.ID)
	fmt.Printf("  Email: %s\n", user.Email)
	fmt.Printf("  Name:  %s\n", user.DisplayName)
	fmt.Printf("  Role:  %s\n", user.Role)

	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
