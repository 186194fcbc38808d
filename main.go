package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-sync/internal/config"
	"chat-sync/internal/db"
	"chat-sync/internal/handlers"
	"chat-sync/internal/hub"
	"chat-sync/internal/middleware"
	"chat-sync/internal/observability"
	"chat-sync/internal/rabbitmq"
	"chat-sync/internal/repositories"
	"chat-sync/internal/telemetry"
)

const serviceName = "chat-sync"

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", serviceName).Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	database, err := db.Connect(cfg.Database.DSN, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(context.Background(), cfg.Telemetry.OTLPEndpoint, serviceName, cfg.Telemetry.Environment)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init tracing")
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
	defer auditPublisher.Close()
	log.Info().Str("mode", rabbitmq.PublisherMode(auditPublisher)).Str("reason", rabbitmq.PublisherNoopReason(auditPublisher)).Msg("audit publisher ready")
	audit := telemetry.NewAuditEmitter(auditPublisher, cfg.AMQP.AuditRoutingKey, serviceName, cfg.Telemetry.Environment, log)

	if cfg.AMQP.URL != "" {
		eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Warn().Err(err).Msg("event publisher unavailable, ws lifecycle events will be dropped")
		} else {
			observability.SetPublisher(eventPublisher)
			defer eventPublisher.Close()
		}
	}

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	eventHub := hub.NewHub(messageRepo, log)
	socket := hub.NewSocketHandler(eventHub)

	conversationHandler := handlers.NewConversationHandler(conversationRepo, audit)
	messageHandler := handlers.NewMessageHandler(conversationRepo, messageRepo, eventHub, audit)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	identity := middleware.Identity()

	router.GET("/conversations", identity, conversationHandler.ListConversations)
	router.POST("/conversations/start", identity, conversationHandler.StartConversation)
	router.GET("/conversations/:conversation_id/messages", identity, messageHandler.GetMessages)
	router.POST("/conversations/:conversation_id/messages", identity, messageHandler.PostMessage)

	router.GET("/ws", socket.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().Str("addr", cfg.Server.Addr).Msg("listening")
	if err := router.Run(cfg.Server.Addr); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
