package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultEnvironment          = "production"
	defaultOriginMatch          = OriginMatchContains
	defaultCurrency             = "jpy"
	defaultLocale               = "ja"
	defaultShippingCountry      = "JP"
	defaultSubscriptionInterval = "month"
	defaultCatalogCollection    = "products"
	defaultCatalogTimeout       = 5 * time.Second
)

// Origin match modes understood by the checkout origin gate.
const (
	OriginMatchContains = "contains"
	OriginMatchExact    = "exact"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Site      SiteConfig
	Firebase  FirebaseConfig
	Firestore FirestoreConfig
	PSP       PSPConfig
	Checkout  CheckoutConfig
	Catalog   CatalogConfig
	Events    EventsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// SiteConfig describes the public storefront the API serves.
type SiteConfig struct {
	// URL is the public site URL. Redirect URLs and relative image paths are built from it.
	URL          string
	Environment  string
	AllowedHosts []string
	OriginMatch  string
}

// Development reports whether the execution mode relaxes browser-facing checks.
func (s SiteConfig) Development() bool {
	switch strings.ToLower(strings.TrimSpace(s.Environment)) {
	case "development", "dev", "local":
		return true
	default:
		return false
	}
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PSPConfig collects payment provider credentials.
type PSPConfig struct {
	StripeAPIKey    string
	StripeAccountID string
}

// CheckoutConfig fixes the hosted checkout session parameters.
type CheckoutConfig struct {
	Currency             string
	Locale               string
	ShippingCountries    []string
	SubscriptionInterval string
}

// CatalogConfig points at the remote product catalog.
type CatalogConfig struct {
	Collection string
	Timeout    time.Duration
}

// EventsConfig configures checkout event publishing. An empty topic disables it.
type EventsConfig struct {
	Topic string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// EnvironmentValues returns the effective key/value environment map after applying the same precedence
// rules as Load (dotenv < OS env < explicit env map). Callers use it to build the secret fetcher
// before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(dotEnvValues))
	for key, value := range dotEnvValues {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			key = strings.TrimSpace(key)
			if !ok || key == "" {
				continue
			}
			values[key] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Site: SiteConfig{
			URL:          strings.TrimRight(strings.TrimSpace(stringWithDefault(lookup, "API_SITE_URL", "")), "/"),
			Environment:  strings.ToLower(stringWithDefault(lookup, "API_ENVIRONMENT", defaultEnvironment)),
			AllowedHosts: csvWithDefault(lookup, "API_SITE_ALLOWED_HOSTS"),
			OriginMatch:  strings.ToLower(stringWithDefault(lookup, "API_SITE_ORIGIN_MATCH", defaultOriginMatch)),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		PSP: PSPConfig{
			StripeAPIKey:    stringWithDefault(lookup, "API_PSP_STRIPE_API_KEY", ""),
			StripeAccountID: stringWithDefault(lookup, "API_PSP_STRIPE_ACCOUNT_ID", ""),
		},
		Checkout: CheckoutConfig{
			Currency:             strings.ToLower(stringWithDefault(lookup, "API_CHECKOUT_CURRENCY", defaultCurrency)),
			Locale:               stringWithDefault(lookup, "API_CHECKOUT_LOCALE", defaultLocale),
			ShippingCountries:    csvWithDefault(lookup, "API_CHECKOUT_SHIPPING_COUNTRIES"),
			SubscriptionInterval: strings.ToLower(stringWithDefault(lookup, "API_CHECKOUT_SUBSCRIPTION_INTERVAL", defaultSubscriptionInterval)),
		},
		Catalog: CatalogConfig{
			Collection: stringWithDefault(lookup, "API_CATALOG_COLLECTION", defaultCatalogCollection),
			Timeout:    durationWithDefault(lookup, "API_CATALOG_TIMEOUT", defaultCatalogTimeout),
		},
		Events: EventsConfig{
			Topic: stringWithDefault(lookup, "API_EVENTS_TOPIC", ""),
		},
	}

	// Firestore project defaults to Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Checkout.ShippingCountries) == 0 {
		cfg.Checkout.ShippingCountries = []string{defaultShippingCountry}
	}
	for i, country := range cfg.Checkout.ShippingCountries {
		cfg.Checkout.ShippingCountries[i] = strings.ToUpper(country)
	}

	secretFields := []*string{&cfg.PSP.StripeAPIKey}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Site.URL != "" {
		parsed, err := url.Parse(cfg.Site.URL)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			invalid = append(invalid, "Site.URL")
		}
	}
	switch cfg.Site.OriginMatch {
	case OriginMatchContains, OriginMatchExact:
	default:
		invalid = append(invalid, "Site.OriginMatch")
	}
	if len(cfg.Checkout.Currency) != 3 {
		invalid = append(invalid, "Checkout.Currency")
	}
	if strings.TrimSpace(cfg.Checkout.Locale) == "" {
		invalid = append(invalid, "Checkout.Locale")
	}
	switch cfg.Checkout.SubscriptionInterval {
	case "day", "week", "month", "year":
	default:
		invalid = append(invalid, "Checkout.SubscriptionInterval")
	}
	if strings.TrimSpace(cfg.Catalog.Collection) == "" {
		invalid = append(invalid, "Catalog.Collection")
	}
	if cfg.Catalog.Timeout <= 0 {
		invalid = append(invalid, "Catalog.Timeout")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
