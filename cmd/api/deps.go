package main

import (
	"log"

	"moneta/internal/domain/connection"
	"moneta/internal/domain/credential"
	"moneta/internal/domain/provider"
	"moneta/internal/domain/sync"
	"moneta/internal/infrastructure/crypto"
	"moneta/internal/infrastructure/postgres"
	"moneta/internal/infrastructure/providers"
	httphandlers "moneta/internal/interfaces/http"
	"moneta/internal/shared/auth"
	"moneta/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	// Handlers
	ProviderHandler   *httphandlers.ProviderHandler
	ConnectionHandler *httphandlers.ConnectionHandler
	SyncHandler       *httphandlers.SyncHandler
	WebhookHandler    *httphandlers.WebhookHandler

	// Auth
	JWT *auth.JWT

	// Sync engine (for the scheduler job provider)
	Orchestrator   *sync.Orchestrator
	ConnectionRepo *postgres.ConnectionRepository
}

// NewDependencies initializes all application dependencies.
func NewDependencies(cfg *config.Config) (*Dependencies, error) {
	// Connect to database
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	// Initialize encryptor
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		return nil, err
	}

	// Initialize repositories
	connectionRepo := postgres.NewConnectionRepository(db)
	credentialRepo := postgres.NewCredentialRepository(db, encryptor)
	accountRepo := postgres.NewAccountRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	runRepo := postgres.NewSyncRunRepository(db)
	webhookEventRepo := postgres.NewWebhookEventRepository(db)

	// Build the provider registry. Providers without operator credentials
	// stay registered but report unavailable (unless demo mode is on).
	registry := provider.NewRegistry(
		providers.NewPlaidClient(providers.PlaidConfig{
			ClientID:    cfg.Providers.Plaid.ClientID,
			Secret:      cfg.Providers.Plaid.Secret,
			Environment: cfg.Providers.Plaid.Environment,
			WebhookURL:  cfg.Providers.Plaid.WebhookURL,
			DemoMode:    cfg.Providers.DemoMode,
		}),
		providers.NewTrueLayerClient(providers.TrueLayerConfig{
			ClientID:     cfg.Providers.TrueLayer.ClientID,
			ClientSecret: cfg.Providers.TrueLayer.ClientSecret,
			RedirectURI:  cfg.Providers.TrueLayer.RedirectURI,
			DemoMode:     cfg.Providers.DemoMode,
		}),
		providers.NewBelvoClient(providers.BelvoConfig{
			SecretID:       cfg.Providers.Belvo.SecretID,
			SecretPassword: cfg.Providers.Belvo.SecretPassword,
			Environment:    cfg.Providers.Belvo.Environment,
			DemoMode:       cfg.Providers.DemoMode,
		}),
		providers.NewYodleeClient(providers.YodleeConfig{
			ClientID:    cfg.Providers.Yodlee.ClientID,
			Secret:      cfg.Providers.Yodlee.Secret,
			Environment: cfg.Providers.Yodlee.Environment,
			DemoMode:    cfg.Providers.DemoMode,
		}),
	)

	// Initialize domain services
	connectionService := connection.NewService(registry, connectionRepo, credentialRepo, accountRepo)
	vault := credential.NewVault(credentialRepo, connectionService)
	orchestrator := sync.NewOrchestrator(
		registry,
		vault,
		connectionRepo,
		accountRepo,
		transactionRepo,
		runRepo,
		sync.NewNormalizer(),
		sync.Config{
			OverlapDays:       cfg.Sync.OverlapDays,
			InitialWindowDays: cfg.Sync.InitialWindowDays,
			MaxAttempts:       cfg.Sync.MaxAttempts,
			RetryBaseDelay:    cfg.Sync.RetryBaseDelay,
			ManualThrottle:    cfg.Sync.ManualThrottle,
		},
	)

	// Initialize auth components
	jwt := auth.NewJWT(cfg.JWT.Secret)

	// Webhook signature verification uses per-provider shared secrets
	verifier := httphandlers.NewHMACVerifier(map[string]string{
		"plaid":     cfg.Providers.Plaid.WebhookSecret,
		"truelayer": cfg.Providers.TrueLayer.WebhookSecret,
		"belvo":     cfg.Providers.Belvo.WebhookSecret,
		"yodlee":    cfg.Providers.Yodlee.WebhookSecret,
	})

	// Initialize handlers
	providerHandler := httphandlers.NewProviderHandler(registry)
	connectionHandler := httphandlers.NewConnectionHandler(connectionService)
	syncHandler := httphandlers.NewSyncHandler(orchestrator, connectionService, runRepo)
	webhookHandler := httphandlers.NewWebhookHandler(registry, verifier, webhookEventRepo, connectionRepo, orchestrator)

	return &Dependencies{
		DB:                db,
		ProviderHandler:   providerHandler,
		ConnectionHandler: connectionHandler,
		SyncHandler:       syncHandler,
		WebhookHandler:    webhookHandler,
		JWT:               jwt,
		Orchestrator:      orchestrator,
		ConnectionRepo:    connectionRepo,
	}, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
