package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/hanko-field/storefront/internal/handlers"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/jobs"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/platform/originguard"
	"github.com/hanko-field/storefront/internal/platform/secrets"
	"github.com/hanko-field/storefront/internal/repositories"
	firestoreRepo "github.com/hanko-field/storefront/internal/repositories/firestore"
	"github.com/hanko-field/storefront/internal/repositories/snapshot"
	"github.com/hanko-field/storefront/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	var checks []repositories.DependencyCheck

	catalogLogger := logger.Named("catalog")
	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, firestoreOptions(cfg)...)
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	catalogDeps := services.CatalogServiceDeps{
		Fallback: snapshot.MustBundled(),
		Timeout:  cfg.Catalog.Timeout,
		Logger:   catalogLogger,
	}
	if firestoreProvider.Configured() {
		productRepo, err := firestoreRepo.NewProductRepository(firestoreProvider, cfg.Catalog.Collection)
		if err != nil {
			logger.Fatal("failed to initialise product repository", zap.Error(err))
		}
		catalogDeps.Catalog = productRepo
		checks = append(checks, firestoreCheck(firestoreProvider.Ping))
	} else {
		catalogLogger.Warn("firestore project not configured; product listing serves bundled products")
	}
	catalogService, err := services.NewCatalogService(catalogDeps)
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	var events services.CheckoutEventPublisher
	if topicID := strings.TrimSpace(cfg.Events.Topic); topicID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, traceProjectID(cfg), cloudClientOptions(cfg)...)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic := pubsubClient.Topic(topicID)
		defer topic.Stop()

		publisher, err := jobs.NewPubSubCheckoutPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise checkout event publisher", zap.Error(err))
		}
		events = publisher
		checks = append(checks, pubsubCheck(publisher.Ping))
	}

	if check, ok := secretManagerCheck(fetcher, envValues); ok {
		checks = append(checks, check)
	}

	checkoutDeps := services.CheckoutServiceDeps{
		Events:               events,
		SiteURL:              cfg.Site.URL,
		Currency:             cfg.Checkout.Currency,
		Locale:               cfg.Checkout.Locale,
		ShippingCountries:    cfg.Checkout.ShippingCountries,
		SubscriptionInterval: cfg.Checkout.SubscriptionInterval,
		Clock:                time.Now,
		Logger:               logger.Named("checkout"),
	}
	if key := strings.TrimSpace(cfg.PSP.StripeAPIKey); key != "" {
		paymentsLogger := logger.Named("payments")
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:    key,
			AccountID: cfg.PSP.StripeAccountID,
			Backends: stripe.NewBackendsWithConfig(&stripe.BackendConfig{
				LeveledLogger: observability.NewLeveledAdapter(paymentsLogger),
			}),
			Logger: paymentsLogger,
			Clock:  time.Now,
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe payment provider", zap.Error(err))
		}
		checkoutDeps.Provider = stripeProvider
	} else {
		logger.Warn("stripe api key not configured; checkout requests will fail with a configuration error")
	}
	checkoutService, err := services.NewCheckoutService(checkoutDeps)
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	systemService, err := newSystemService(checks, buildInfo)
	if err != nil {
		logger.Fatal("failed to initialise system service", zap.Error(err))
	}

	originPolicy := originguard.NewPolicy(originguard.Config{
		SiteURL:      cfg.Site.URL,
		AllowedHosts: cfg.Site.AllowedHosts,
		Mode:         originguard.MatchMode(cfg.Site.OriginMatch),
		Development:  cfg.Site.Development(),
	})
	if cfg.Site.Development() {
		logger.Info("development mode; checkout origin gate disabled")
	}

	projectID := traceProjectID(cfg)
	httpLogger := logger.Named("http")
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(httpLogger),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(httpLogger),
		observability.RequestLoggerMiddleware(),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(systemService),
	)
	productHandlers := handlers.NewProductHandlers(catalogService)
	checkoutHandlers := handlers.NewCheckoutHandlers(checkoutService)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithPublicRoutes(productHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithCheckoutMiddlewares(originPolicy.Middleware),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront api listening",
			zap.String("environment", cfg.Site.Environment),
			zap.Bool("checkoutConfigured", checkoutService.Configured()),
			zap.Bool("catalogConfigured", catalogDeps.Catalog != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := checkoutService.Flush(shutdownCtx); err != nil {
		logger.Warn("checkout events still publishing at shutdown", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Site.Environment,
		StartedAt:   started,
	}
}

func newSystemService(checks []repositories.DependencyCheck, build services.BuildInfo) (services.SystemService, error) {
	repo, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyTimeout(2*time.Second))
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Clock:            time.Now,
		Build:            build,
	})
}

// firestoreCheck gates readiness on the catalog database.
func firestoreCheck(ping func(context.Context) error) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name:    "firestore",
		Timeout: 1500 * time.Millisecond,
		Check:   ping,
	}
}

// pubsubCheck only degrades readiness; checkout events are not required to serve requests.
func pubsubCheck(ping func(context.Context) error) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name:     "pubsub",
		Timeout:  time.Second,
		Optional: true,
		Check:    ping,
	}
}

// secretManagerCheck probes Secret Manager when a project is configured. A missing health secret
// still proves connectivity.
func secretManagerCheck(fetcher *secrets.Fetcher, env map[string]string) (repositories.DependencyCheck, bool) {
	if fetcher == nil || !secretProjectConfigured(env) {
		return repositories.DependencyCheck{}, false
	}
	const secretHealthReference = "secret://system/healthz?version=latest"
	return repositories.DependencyCheck{
		Name:     "secretManager",
		Timeout:  time.Second,
		Optional: true,
		Check: func(ctx context.Context) error {
			_, err := fetcher.Resolve(ctx, secretHealthReference)
			if err == nil {
				return nil
			}
			if errors.Is(err, secrets.ErrNotFound) {
				return nil
			}
			return err
		},
	}, true
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func cloudClientOptions(cfg config.Config) []option.ClientOption {
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}

func firestoreOptions(cfg config.Config) []pfirestore.ProviderOption {
	opts := cloudClientOptions(cfg)
	if len(opts) == 0 {
		return nil
	}
	return []pfirestore.ProviderOption{pfirestore.WithClientOptions(opts...)}
}

func secretProjectConfigured(env map[string]string) bool {
	for _, key := range []string{"API_SECRET_DEFAULT_PROJECT_ID", "API_FIREBASE_PROJECT_ID", "API_SECRET_PROJECT_IDS"} {
		if strings.TrimSpace(env[key]) != "" {
			return true
		}
	}
	return false
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "production"
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projects := parseKeyValueList(lookup("API_SECRET_PROJECT_IDS")); len(projects) > 0 {
		opts = append(opts, secrets.WithProjectMap(projects))
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return result
	}
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}
