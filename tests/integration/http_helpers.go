package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/cardguard/internal/auth"
	"github.com/BradenHooton/cardguard/internal/database"
	"github.com/BradenHooton/cardguard/internal/fraud"
	"github.com/BradenHooton/cardguard/internal/handlers"
	middlewareCustom "github.com/BradenHooton/cardguard/internal/middleware"
	"github.com/BradenHooton/cardguard/internal/routes"
	"github.com/BradenHooton/cardguard/internal/services"
)

const testJWTSecret = "test-secret-32-characters-long-for-testing"

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	FraudService *services.FraudService
	TokenManager *auth.TokenManager
	Dispatcher   *services.AlertDispatcher

	logger *slog.Logger
}

// TestServerOptions tunes the fraud policies for a test server. Zero
// values fall back to the reference policies.
type TestServerOptions struct {
	FraudConfig *services.FraudServiceConfig
	GuardPolicy *fraud.Policy
	WebhookURL  string
}

// NewTestServer initializes a complete HTTP server against a real database
func NewTestServer(db *database.DB, opts TestServerOptions) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cardRepo, fraudLogRepo, redemptionRepo := InitializeRepositories(db)

	dispatcherConfig := services.DefaultAlertDispatcherConfig()
	dispatcherConfig.WebhookURL = opts.WebhookURL
	dispatcherConfig.SigningSecret = testJWTSecret
	dispatcherConfig.BackoffBase = 5 * time.Millisecond
	dispatcher := services.NewAlertDispatcher(dispatcherConfig, nil, logger)

	aggregator := fraud.NewAggregator(fraud.DefaultAggregatorConfig(), dispatcher, logger)

	fraudConfig := services.DefaultFraudServiceConfig()
	if opts.FraudConfig != nil {
		fraudConfig = *opts.FraudConfig
	}
	fraudService := services.NewFraudService(fraudConfig, cardRepo, fraudLogRepo, aggregator, logger)

	guardPolicy := fraud.Policy{Name: "redemption_ip_device", Window: 10 * time.Minute, MaxAttempts: 5}
	if opts.GuardPolicy != nil {
		guardPolicy = *opts.GuardPolicy
	}
	guard := middlewareCustom.NewRedemptionGuard(guardPolicy, fraudService, cardRepo, redemptionRepo, logger)

	tokenManager := auth.NewTokenManager(testJWTSecret, 15*time.Minute)

	redemptionHandler := handlers.NewRedemptionHandler(fraudService, cardRepo, redemptionRepo, dispatcher, logger)
	fraudLogHandler := handlers.NewFraudLogHandler(fraudService)
	cardHandler := handlers.NewCardHandler(cardRepo, redemptionRepo)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		routes.RegisterRoutes(r, guard, redemptionHandler, fraudLogHandler, cardHandler, tokenManager)
	})

	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		DB:           db,
		FraudService: fraudService,
		TokenManager: tokenManager,
		Dispatcher:   dispatcher,
		logger:       logger,
	}
}

// Close shuts down the test server and flushes pending alerts
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	if ts.Dispatcher != nil {
		ts.Dispatcher.Stop()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "integration-test/1.0")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with a dashboard token
func (ts *TestServer) RequestWithAuth(method, path, role string, body interface{}) (*http.Response, error) {
	token, err := ts.TokenManager.GenerateToken("integration@example.com", role)
	if err != nil {
		return nil, err
	}
	return ts.Request(method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// Redeem posts a redemption payload, optionally with a device fingerprint
func (ts *TestServer) Redeem(payload, fingerprint string) (*http.Response, error) {
	headers := map[string]string{}
	if fingerprint != "" {
		headers[middlewareCustom.DeviceFingerprintHeader] = fingerprint
	}
	return ts.Request("POST", "/api/v1/redemptions", map[string]string{"payload": payload}, headers)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorCode extracts the machine-readable code from a block response
func GetErrorCode(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	if code, ok := errResp["code"].(string); ok {
		return code, nil
	}
	return "", nil
}
