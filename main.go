package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/audit"
	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
	"github.com/reviewpilot/reviewpilot-engine/pkg/config"
	"github.com/reviewpilot/reviewpilot-engine/pkg/crypto"
	"github.com/reviewpilot/reviewpilot-engine/pkg/database"
	"github.com/reviewpilot/reviewpilot-engine/pkg/handlers"
	"github.com/reviewpilot/reviewpilot-engine/pkg/llm"
	"github.com/reviewpilot/reviewpilot-engine/pkg/logging"
	"github.com/reviewpilot/reviewpilot-engine/pkg/mcp"
	mcpauth "github.com/reviewpilot/reviewpilot-engine/pkg/mcp/auth"
	"github.com/reviewpilot/reviewpilot-engine/pkg/mcp/tools"
	"github.com/reviewpilot/reviewpilot-engine/pkg/middleware"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/platforms"
	"github.com/reviewpilot/reviewpilot-engine/pkg/prompts"
	"github.com/reviewpilot/reviewpilot-engine/pkg/repositories"
	"github.com/reviewpilot/reviewpilot-engine/pkg/services"
	"github.com/reviewpilot/reviewpilot-engine/pkg/sms"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		// The configured logger is not built yet.
		zap.Must(zap.NewProduction()).Fatal("Failed to load config", zap.Error(err))
	}

	logger := newLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL())),
		zap.Bool("redis", cfg.Redis.Host != ""),
		zap.Bool("ai", cfg.AI.IsAvailable()),
		zap.Bool("sms", cfg.Twilio.IsAvailable()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Migrations run on a database/sql handle before the pool opens.
	sqlDB, err := database.OpenSQL(cfg.Database.URL())
	if err != nil {
		logger.Fatal("Failed to open database for migrations", zap.String("error", logging.SanitizeError(err)))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	cipher, err := crypto.NewTokenCipher(cfg.CredentialsKey)
	if err != nil {
		logger.Fatal("Invalid CREDENTIALS_KEY", zap.Error(err))
	}

	jwksClient, err := auth.NewJWKSClient(ctx, &auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
		Audience:           cfg.Auth.Audience,
	})
	if err != nil {
		logger.Fatal("Failed to initialize JWKS client", zap.Error(err))
	}
	defer jwksClient.Close()
	authService := auth.NewAuthService(jwksClient, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)

	// Repositories
	orgRepo := repositories.NewOrganizationRepository()
	userRepo := repositories.NewUserRepository()
	businessRepo := repositories.NewBusinessRepository()
	locationRepo := repositories.NewLocationRepository()
	groupRepo := repositories.NewLocationGroupRepository()
	accessRepo := repositories.NewLocationAccessRepository()
	reviewRepo := repositories.NewReviewRepository()
	connRepo := repositories.NewPlatformConnectionRepository(cipher)
	aiRepo := repositories.NewAISettingsRepository()
	competitorRepo := repositories.NewCompetitorRepository()
	notificationRepo := repositories.NewNotificationRepository()
	campaignRepo := repositories.NewCampaignRepository()
	smsRepo := repositories.NewSmsRepository()
	invitationRepo := repositories.NewTeamInvitationRepository()

	// External clients
	registry := platforms.NewRegistry(
		platforms.NewGoogleAdapter(platforms.GoogleConfig{
			ClientID:     cfg.Platforms.Google.ClientID,
			ClientSecret: cfg.Platforms.Google.ClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL(models.PlatformGoogle),
		}, logger),
		platforms.NewYelpAdapter(platforms.YelpConfig{
			ClientID:     cfg.Platforms.Yelp.ClientID,
			ClientSecret: cfg.Platforms.Yelp.ClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL(models.PlatformYelp),
			APIKey:       cfg.Platforms.Yelp.APIKey,
		}, logger),
		platforms.NewFacebookAdapter(platforms.FacebookConfig{
			AppID:        cfg.Platforms.Facebook.AppID,
			AppSecret:    cfg.Platforms.Facebook.AppSecret,
			RedirectURL:  cfg.OAuthRedirectURL(models.PlatformFacebook),
			GraphVersion: cfg.Platforms.Facebook.GraphVersion,
		}, logger),
	)
	lookup := platforms.NewCompetitorLookup(platforms.CompetitorLookupConfig{
		PlacesAPIKey: cfg.Platforms.Google.PlacesAPIKey,
		YelpAPIKey:   cfg.Platforms.Yelp.APIKey,
	}, logger)

	llmClient, err := llm.NewFromConfig(&cfg.AI, logger)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		logger.Warn("AI provider not configured; drafts, auto-reply and insights are disabled")
	case err != nil:
		logger.Fatal("Failed to initialize AI provider", zap.Error(err))
	}

	var sender sms.Sender = sms.DisabledSender{}
	if cfg.Twilio.IsAvailable() {
		sender = sms.NewTwilioSender(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber, logger)
	} else {
		logger.Warn("Twilio not configured; SMS sending is disabled")
	}

	var states services.OAuthStateStore
	if redisClient != nil {
		states = services.NewOAuthStateStore(redisClient)
	} else {
		logger.Warn("Redis not configured; OAuth state is kept in memory (single instance only)")
		states = services.NewMemoryOAuthStateStore()
	}

	quotas := models.PlanQuotas(cfg.Plans.Quotas())
	getTenantCtx := services.NewTenantContextFunc(db)
	getUnscopedCtx := services.NewUnscopedContextFunc(db)
	auditor := audit.NewSecurityAuditor(logger)

	// Services
	notificationService := services.NewNotificationService(notificationRepo, logger)
	accessService := services.NewLocationAccessService(userRepo, locationRepo, groupRepo, accessRepo, logger)
	teamService := services.NewTeamService(userRepo, invitationRepo, locationRepo, groupRepo, accessService, getTenantCtx, logger)
	userService := services.NewUserService(userRepo, orgRepo, teamService, accessService, getTenantCtx, logger)
	businessService := services.NewBusinessService(businessRepo, aiRepo, logger)
	locationService := services.NewLocationService(locationRepo, groupRepo, businessRepo, userRepo, accessService, logger)
	groupService := services.NewLocationGroupService(groupRepo, logger)
	aiSettingsService := services.NewAISettingsService(aiRepo, businessRepo, logger)
	aiService := services.NewAIService(llmClient, prompts.MustLoad(), businessRepo, reviewRepo, competitorRepo, cfg.AI.Temperature, logger)
	platformService := services.NewPlatformService(registry, states, connRepo, businessRepo, reviewRepo, locationRepo,
		notificationService, getTenantCtx, getUnscopedCtx, logger)
	reviewService := services.NewReviewService(reviewRepo, businessRepo, userRepo, aiRepo, accessService, platformService, aiService, logger)
	autoReplyService := services.NewAutoReplyService(aiRepo, businessRepo, connRepo, reviewRepo, aiService, platformService,
		notificationService, getTenantCtx, getUnscopedCtx, logger)
	competitorService := services.NewCompetitorService(competitorRepo, businessRepo, lookup, notificationService,
		getTenantCtx, getUnscopedCtx, logger)
	smsService := services.NewSmsService(sender, smsRepo, orgRepo, businessRepo, quotas, logger)
	campaignService := services.NewCampaignService(campaignRepo, smsRepo, orgRepo, businessRepo, sender,
		notificationService, getTenantCtx, quotas, cfg.Jobs.SmsSendDelay, logger)

	// Background jobs
	var jobs []services.Job
	if cfg.Jobs.Enabled {
		jobs = append(jobs,
			services.Job{
				Name:     "review_sync",
				Interval: cfg.Jobs.ReviewSyncInterval,
				Run: func(ctx context.Context) error {
					return platformService.SyncAll(ctx, cfg.Jobs.ReviewSyncPlatforms)
				},
			},
			services.Job{Name: "competitor_refresh", Interval: cfg.Jobs.CompetitorRefreshInterval, Run: competitorService.RefreshAll},
		)
		if aiService.Available() {
			jobs = append(jobs, services.Job{Name: "auto_reply", Interval: cfg.Jobs.AutoReplyInterval, Run: autoReplyService.RunOnce})
		}
	}
	scheduler := services.NewScheduler(services.NewLeaser(redisClient), logger, jobs...)
	scheduler.Start(ctx)

	// Routes
	tenantMiddleware := database.WithTenantContext(db, userService.ResolvePrincipal, logger)
	unscopedMiddleware := database.WithUnscopedContext(db, logger)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewMeHandler(userService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware, unscopedMiddleware)
	handlers.NewBusinessHandler(businessService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewLocationHandler(locationService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewLocationGroupHandler(groupService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewLocationAccessHandler(accessService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewReviewHandler(reviewService, auditor, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewPlatformHandler(platformService, auth.NewSessionStore(cfg.SessionSecret, cfg.BaseURL), auditor,
		cfg.FrontendURL, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewCompetitorHandler(competitorService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewNotificationHandler(notificationService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewCampaignHandler(campaignService, smsService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewTeamHandler(teamService, cfg.FrontendURL, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewAIHandler(aiSettingsService, aiService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewWebhookHandler(platformService, handlers.WebhookConfig{
		FacebookAppSecret:   cfg.Platforms.Facebook.AppSecret,
		FacebookVerifyToken: cfg.Platforms.Facebook.VerifyToken,
		GooglePubSubToken:   cfg.Platforms.Google.PubSubToken,
	}, auditor, logger).RegisterRoutes(mux)

	// MCP
	mcpServer := mcp.NewServer("reviewpilot-engine", cfg.Version, logger)
	mcpServer.RegisterReviewTools(cfg.Version, db, &tools.ReviewToolDeps{
		Locations: locationService,
		Reviews:   reviewService,
		Logger:    logger,
	})
	mcpAuth := mcpauth.NewMiddleware(authService, logger)
	mux.Handle("/mcp", mcpAuth.RequireAuth(tenantMiddleware(mcpServer.NewStreamableHTTPServer().ServeHTTP)))

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.Wrap(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting reviewpilot-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if cfg.TLSCertPath != "" {
			errChan <- server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
			return
		}
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	// Job ticks and campaign deliveries see the cancelled context; give them the rest of
	// the shutdown window to record where they stopped before the pool closes.
	scheduler.Wait()
	if err := campaignService.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Campaign deliveries still running at shutdown", zap.Error(err))
	}
	logger.Info("Stopped")
}

func newLogger(env string) *zap.Logger {
	if env == "local" || env == "dev" {
		return zap.Must(zap.NewDevelopment())
	}
	return zap.Must(zap.NewProduction())
}
