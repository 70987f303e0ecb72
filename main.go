package main

import (
	"context"
	"os"
	"strconv"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"nebula-api/api"
	"nebula-api/calendar"
	"nebula-api/config"
	"nebula-api/storage"
	"nebula-api/views"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	configPath := os.Getenv("NEBULA_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("invalid timezone %q: %v", cfg.Timezone, err)
	}

	var backend storage.TaskBackend
	if connStr := os.Getenv("STORAGE_CONNECTION_STRING"); connStr != "" {
		tableName := os.Getenv("TASKS_TABLE")
		if tableName == "" {
			log.Fatal("TASKS_TABLE must be set with STORAGE_CONNECTION_STRING")
		}
		backend, err = storage.NewTableStore(connStr, tableName)
		if err != nil {
			log.Fatalf("table storage: %v", err)
		}
	} else {
		backend, err = storage.OpenSQLite(cfg.DatabasePath)
		if err != nil {
			log.Fatalf("sqlite: %v", err)
		}
	}

	if cfg.Redis != "" {
		redisOpts, err := redis.ParseURL(cfg.Redis)
		if err != nil {
			redisOpts = &redis.Options{Addr: cfg.Redis}
		}
		backend = storage.NewCache(backend, redis.NewClient(redisOpts), cfg.CacheTTL())
	}
	store := storage.NewStore(backend)

	feeds := make([]calendar.Feed, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		feeds = append(feeds, calendar.Feed{ID: f.ID, URL: f.URL, Name: f.Name, Color: f.Color})
	}
	provider := calendar.NewICSProvider(feeds, logger)
	bridge := calendar.NewBridge(provider, loc, logger)

	coord := views.NewCoordinator(store, bridge, cfg.FirstWeekday(), loc, logger)

	if len(feeds) > 0 {
		if _, err := coord.RequestCalendarAccess(context.Background()); err != nil {
			log.WithError(err).Warn("calendar access request failed")
		}
		if err := coord.RefreshCalendar(context.Background()); err != nil {
			log.WithError(err).Warn("initial calendar refresh failed")
		}
	}

	cr := cron.New()
	if _, err := cr.AddFunc(cfg.RefreshCron, func() {
		if err := coord.RefreshCalendar(context.Background()); err != nil {
			log.WithError(err).Warn("scheduled calendar refresh failed")
		}
	}); err != nil {
		log.Fatalf("invalid refresh schedule %q: %v", cfg.RefreshCron, err)
	}
	cr.Start()
	defer cr.Stop()

	auth, err := buildAuth(cfg)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, coord, auth, logger)

	e.Logger.Fatal(e.Start(cfg.Listen))
}

func buildAuth(cfg *config.Config) (api.Authenticator, error) {
	switch cfg.Auth.Mode {
	case "hs256":
		secret := cfg.Auth.Secret
		if secret == "" {
			secret = os.Getenv("NEBULA_AUTH_SECRET")
		}
		if secret == "" {
			log.Fatal("auth mode hs256 requires a secret")
		}
		return api.NewSharedSecretAuth([]byte(secret)), nil
	case "jwks":
		jwks, err := keyfunc.Get(cfg.Auth.JWKSURL, keyfunc.Options{})
		if err != nil {
			return nil, err
		}
		return api.NewJWKSAuth(jwks, cfg.Auth.Audience, cfg.Auth.Issuer), nil
	default:
		return api.NewLocalAuth(), nil
	}
}
