package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mystery-box/config"
	"mystery-box/handlers"
	"mystery-box/services"
	"mystery-box/store"
	"mystery-box/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn("⚠️  No .env file found, reading environment variables directly")
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg := config.Load()

	var st store.Store
	if cfg.DatabaseURL == "" {
		log.Warn("⚠️  DATABASE_URL not set, using the in-memory store (state is lost on restart)")
		st = store.NewMemoryStore()
	} else {
		pg, err := store.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		st = pg
	}

	lexicon := services.NewLexicon(cfg.Stopwords, cfg.MinTokenLen, cfg.PluralMinLen)
	validator := services.NewGuessValidator(lexicon, newSemanticMatcher(cfg), cfg.SemanticMatchTimeout)
	validation := services.NewValidationService(st, validator, cfg.ValidationCacheTTL)

	games := services.NewGameService(st, cfg.BroadcasterID, cfg.RevealDelay, cfg.PollInterval)
	engine := &handlers.Engine{
		Games:         games,
		Ledger:        services.NewReferralLedger(st),
		Quota:         services.NewQuotaManager(st, cfg.BroadcasterID),
		Winners:       services.NewWinnerSelector(games, validation),
		Validation:    validation,
		OperatorToken: cfg.OperatorToken,
	}

	if cfg.R2Enabled() {
		r2, err := utils.NewR2Store(context.Background(), utils.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			Bucket:          cfg.R2Bucket,
			CDNBaseURL:      cfg.CDNBaseURL,
		})
		if err != nil {
			log.Fatalf("failed to initialize R2 client: %v", err)
		}
		engine.Logos = r2
	} else {
		log.Info("R2 not configured, sponsor logo upload disabled")
	}

	sched, err := validation.StartCachePruner(cfg.CachePruneEvery)
	if err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit:    4 * 1024 * 1024,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	allowedOriginsList := strings.Split(cfg.AllowedOrigins, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(allowedOriginsList, ","),
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Requested-With",
		MaxAge:       86400,
	}))

	handlers.SetupRoutes(app, engine)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Errorf("Server error: %v", err)
			stop()
		}
	}()

	log.Infof("✅ Server running on http://localhost:%s", cfg.Port)
	log.Infof("✅ Semantic match mode: %s", cfg.SemanticMatchMode)
	log.Infof("✅ CORS configured for origins: %s", cfg.AllowedOrigins)

	<-ctx.Done()
	log.Info("Shutting down server...")
	if err := sched.Shutdown(); err != nil {
		log.Warnf("scheduler shutdown: %v", err)
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Warnf("server shutdown: %v", err)
	}
}

func newSemanticMatcher(cfg *config.Config) services.SemanticMatcher {
	var next services.SemanticMatcher
	switch cfg.SemanticMatchMode {
	case "http":
		if cfg.SemanticMatchURL == "" {
			log.Warn("SEMANTIC_MATCH_MODE=http without SEMANTIC_MATCH_URL, AI fallback disabled")
			return nil
		}
		next = services.NewHTTPSemanticMatcher(cfg.SemanticMatchURL, cfg.SemanticMatchToken, cfg.SemanticMatchTimeout)
	case "chat":
		apiURL := cfg.SemanticMatchURL
		if apiURL == "" {
			apiURL = "https://api.openai.com/v1/chat/completions"
		}
		next = services.NewChatSemanticMatcher(apiURL, cfg.SemanticMatchToken, cfg.SemanticMatchModel, cfg.SemanticMatchTimeout)
	default:
		return nil
	}
	return services.NewRateLimitedMatcher(next, cfg.SemanticMatchRate, cfg.SemanticMatchBurst)
}
