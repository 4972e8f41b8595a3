package main

import (
	"database/sql"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	_ "github.com/lib/pq"
	"github.com/valkey-io/valkey-go"

	"github.com/idport/idport/pkg/op"
	"github.com/idport/idport/pkg/prettylog"
	"github.com/idport/idport/pkg/store"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	godotenv.Load()

	if os.Getenv("PRETTY_LOGS") != "false" {
		logger := slog.New(prettylog.NewHandler(slog.LevelDebug))
		slog.SetDefault(logger)
	}

	configPath := getEnv("IDPORT_CONFIG_PATH", "config/idport.yaml")
	slog.Info("Loading provider config", "config_path", configPath)
	cfg, err := op.LoadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}

	stores, err := buildStores(cfg)
	if err != nil {
		log.Fatal(err)
	}

	host := newDevHost(cfg, stores.Codes)

	server, err := op.New(cfg, stores, host)
	if err != nil {
		log.Fatal(err)
	}

	root := echo.New()
	root.HideBanner = true
	server.MountRoutes(root.Group(""))
	host.MountRoutes(root)

	address := getEnv("IDPORT_ADDRESS", ":8080")
	slog.Info("Starting provider", "address", address, "issuer", cfg.Issuer)
	log.Fatal(root.Start(address))
}

// buildStores selects backends from the configuration: Valkey for codes
// and Postgres for clients and users when configured, in-memory stores
// seeded from the config file otherwise.
func buildStores(cfg *op.Config) (op.Stores, error) {
	stores := op.Stores{
		Resources: store.NewStaticResourceStore(cfg.Resources),
	}

	if cfg.Valkey != nil {
		client, err := valkey.NewClient(valkey.ClientOption{
			InitAddress: []string{cfg.Valkey.Address},
			Username:    cfg.Valkey.Username,
			Password:    cfg.Valkey.Password,
		})
		if err != nil {
			return op.Stores{}, err
		}
		stores.Codes = store.NewValkeyCodeStore(client)
		slog.Info("Using valkey code store", "address", cfg.Valkey.Address)
	} else {
		stores.Codes = store.NewMemoryCodeStore()
	}

	if cfg.Postgres != nil {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return op.Stores{}, err
		}
		if os.Getenv("IDPORT_INIT_SCHEMA") == "true" {
			if _, err := db.Exec(store.Schema); err != nil {
				return op.Stores{}, err
			}
			slog.Info("Applied postgres schema")
		}
		stores.Clients = store.NewPostgresClientStore(db)
		stores.Users = store.NewPostgresUserStore(db)
		slog.Info("Using postgres client and user stores")
	} else {
		stores.Clients = store.NewStaticClientStore(cfg.StoreClients())
		users := store.NewMemoryUserStore()
		for _, user := range cfg.MemoryUsers() {
			users.AddUser(user)
		}
		stores.Users = users
	}

	return stores, nil
}
