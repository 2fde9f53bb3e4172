package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"go-messenger/internal/admin"
	"go-messenger/internal/auth"
	"go-messenger/internal/channel"
	"go-messenger/internal/config"
	"go-messenger/internal/contact"
	"go-messenger/internal/db"
	"go-messenger/internal/group"
	"go-messenger/internal/logging"
	"go-messenger/internal/media"
	"go-messenger/internal/middleware"
	"go-messenger/internal/realtime"
	"go-messenger/internal/user"
)

func main() {
	addr := flag.String("addr", "", "http service address (overrides server.addr)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Platform: Postgres and Redis.
	database, err := db.NewDatabase(ctx, cfg.Database.DSN, db.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer database.Close()
	logging.Info().Msg("connected to PostgreSQL")

	if err := database.AutoMigrate(ctx); err != nil {
		logging.Fatal().Err(err).Msg("migration failed")
	}
	logging.Info().Msg("database schema initialized")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logging.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("failed to connect to Redis")
	}
	logging.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")

	// Real-time layer.
	var relay realtime.Relay
	if cfg.Redis.Enabled {
		relay = realtime.NewBreakerRelay(
			realtime.NewRedisRelay(redisClient, cfg.Redis.Channel),
			realtime.BreakerConfig{Failures: cfg.Redis.BreakerFailures, Cooldown: cfg.Redis.BreakerCooldown},
		)
	}
	instanceID := uuid.NewString()
	registry := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(registry, relay, instanceID)
	router := realtime.NewRouter(registry, realtime.RouterConfig{
		CommandTimeout: cfg.Realtime.CommandTimeout,
		AuthorizeJoins: cfg.Realtime.AuthorizeJoins,
		CommandRate:    cfg.Realtime.CommandRate,
		CommandBurst:   cfg.Realtime.CommandBurst,
	})
	hub := realtime.NewHub(registry, router, realtime.HubConfig{
		SendBuffer:  cfg.Realtime.SendBuffer,
		CheckOrigin: originChecker(cfg.CORS.AllowedOrigins),
	})

	// Features.
	files, err := media.NewDiskStore(cfg.Uploads.Dir, cfg.Uploads.URLPrefix)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to prepare upload directory")
	}
	library := media.NewLibrary(media.NewUploadRepository(database.Conn), files)
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	userService := user.NewService(
		user.NewRepository(database.Conn),
		tokens,
		user.NewRedisCodeStore(redisClient, cfg.Auth.ResetCodeTTL),
		user.LogSender{},
		library,
	)
	adminService := admin.NewService(admin.NewRepository(database.Conn), tokens)
	contactService := contact.NewService(contact.NewRepository(database.Conn), dispatcher, library)
	groupService := group.NewService(group.NewRepository(database.Conn), dispatcher, library)
	channelService := channel.NewService(channel.NewRepository(database.Conn), dispatcher, library)

	contact.RegisterCommands(router, contactService)
	group.RegisterCommands(router, groupService)
	channel.RegisterCommands(router, channelService)

	handler := newRouter(routes{
		cfg:     cfg,
		authMW:  middleware.NewAuthMiddleware(tokens),
		hub:     hub,
		files:   files,
		upload:  media.NewHandler(library, cfg.Uploads.MaxBytes),
		user:    user.NewHandler(userService),
		admin:   admin.NewHandler(adminService),
		contact: contact.NewHandler(contactService),
		group:   group.NewHandler(groupService),
		channel: channel.NewHandler(channelService),
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := newTree(cfg.Server.ShutdownTimeout)
	tree.Add(hub)
	if relay != nil {
		tree.Add(realtime.NewSubscriber(relay, dispatcher))
	}
	tree.Add(newHTTPService(server, cfg.Server.ShutdownTimeout))

	logging.Info().
		Str("addr", cfg.Server.Addr).
		Str("instance", instanceID).
		Bool("relay", relay != nil).
		Msg("server starting")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor stopped")
	}
	logging.Info().Msg("server stopped")
}
