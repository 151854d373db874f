package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"backoffice-service/config"
	"backoffice-service/internal/auth"
	"backoffice-service/internal/service"
	"backoffice-service/internal/store"
	"backoffice-service/internal/util"

	"go.uber.org/zap"
)

func main() {
	var (
		email    string
		password string
		name     string
		surname  string
		hashOnly bool
	)
	flag.StringVar(&email, "email", "", "admin email")
	flag.StringVar(&password, "password", "", "admin password")
	flag.StringVar(&name, "name", "Admin", "admin first name")
	flag.StringVar(&surname, "surname", "User", "admin surname")
	flag.BoolVar(&hashOnly, "hash", false, "print the bcrypt hash of -password and exit")
	flag.Parse()

	cfg := config.Load()
	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.ServiceName); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	hasher := auth.NewHasher(cfg.Auth.BcryptCost)

	if hashOnly {
		if password == "" {
			logger.Fatal("-password is required")
		}
		hash, err := hasher.Hash(password)
		if err != nil {
			logger.Fatal("Failed to hash password", zap.Error(err))
		}
		fmt.Fprintln(os.Stdout, hash)
		return
	}

	if email == "" || password == "" {
		flag.Usage()
		os.Exit(2)
	}
	if cfg.Database.Driver != "postgres" {
		logger.Fatal("createadmin needs a persistent store", zap.String("driver", cfg.Database.Driver))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout+30*time.Second)
	defer cancel()

	db, err := store.NewStore(ctx, cfg.Database.URL, store.Options{
		ConnectTimeout: cfg.Database.ConnectTimeout,
		LockTimeout:    cfg.Database.LockTimeout,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
	}

	// Admin creation needs neither tokens nor password resets
	accounts := service.NewAccountService(db, hasher, nil, nil, nil, cfg.Auth.ResetCodeTTL)
	admin, err := accounts.CreateAdmin(ctx, &service.RegisterRequest{
		Name:     name,
		Surname:  surname,
		Email:    email,
		Password: password,
	})
	if err != nil {
		logger.Fatal("Failed to create admin", zap.Error(err))
	}

	logger.Info("Admin created", zap.String("user_id", admin.ID.String()), zap.String("email", admin.Email))
}
