package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/cexll/reviewloop/internal/config"
	"github.com/cexll/reviewloop/internal/dispatcher"
	"github.com/cexll/reviewloop/internal/executor"
	"github.com/cexll/reviewloop/internal/github"
	"github.com/cexll/reviewloop/internal/invocations"
	"github.com/cexll/reviewloop/internal/web"
	"github.com/cexll/reviewloop/internal/webhook"
)

var (
	loadDotEnv          = godotenv.Load
	newInvocationsStore = invocations.NewStore
	newDispatcher       = dispatcher.New
	defaultListenServe  = http.ListenAndServe
)

func main() {
	if err := run(context.Background(), defaultListenServe); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func run(ctx context.Context, serve func(string, http.Handler) error) error {
	// Load .env file (ignore error if file doesn't exist)
	_ = loadDotEnv()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log.Printf("Starting review loop server...")
	log.Printf("Port: %d", cfg.Port)
	log.Printf("Trigger keyword: %s", cfg.TriggerKeyword)
	log.Printf("GitHub App ID: %s", cfg.GitHubAppID)
	log.Printf("Dispatcher workers: %d, queue size: %d, max attempts: %d", cfg.DispatcherWorkers, cfg.DispatcherQueueSize, cfg.DispatcherMaxAttempts)

	// Initialize in-memory invocation log for the inspection API
	invStore := newInvocationsStore()

	// Initialize GitHub App authentication
	appAuth := &github.AppAuth{
		AppID:      cfg.GitHubAppID,
		PrivateKey: cfg.GitHubPrivateKey,
	}

	// Initialize executor
	exec := executor.New(appAuth, invStore)

	// Initialize dispatcher (task queue with retries)
	dispatcherConfig := dispatcher.Config{
		Workers:           cfg.DispatcherWorkers,
		QueueSize:         cfg.DispatcherQueueSize,
		MaxAttempts:       cfg.DispatcherMaxAttempts,
		InitialBackoff:    cfg.DispatcherRetryInitial,
		BackoffMultiplier: cfg.DispatcherBackoffMultiplier,
		MaxBackoff:        cfg.DispatcherRetryMax,
	}
	taskDispatcher := newDispatcher(exec, dispatcherConfig)
	defer taskDispatcher.Shutdown(ctx)

	// Initialize webhook handler
	handler := webhook.NewHandler(cfg.GitHubWebhookSecret, cfg.TriggerKeyword, taskDispatcher, invStore, appAuth)

	// Initialize inspection API handler
	webHandler := web.NewHandler(invStore)

	// Setup router
	r := mux.NewRouter()

	// Webhook endpoint
	r.HandleFunc("/webhook", handler.Handle).Methods("POST")

	// Invocation inspection endpoints
	webHandler.RegisterRoutes(r)

	// Health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Root endpoint with info
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"service":"reviewloop","status":"running","trigger":"%s"}`, cfg.TriggerKeyword)
	}).Methods("GET")

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Server listening on %s", addr)
	log.Printf("Webhook endpoint: http://localhost%s/webhook", addr)
	log.Printf("Health check: http://localhost%s/health", addr)
	log.Printf("Invocations API: http://localhost%s/invocations", addr)

	if err := serve(addr, r); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}
