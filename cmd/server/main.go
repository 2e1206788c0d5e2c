package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tannerhall/tinychat"
	"github.com/tannerhall/tinychat/internal/chat"
	"github.com/tannerhall/tinychat/internal/handlers"
	"github.com/tannerhall/tinychat/internal/proxy"
)

func main() {
	// A missing .env is fine; the environment may already carry the keys.
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.logLevel(),
	}))

	credName, credValue := cfg.LLM.credential()

	provider, err := cfg.LLM.provider(cfg.Proxy.RefererURL, cfg.Proxy.AppTitle, logger)
	if err != nil {
		log.Fatal(fmt.Errorf("error configuring llm provider: %w", err))
	}

	metrics := proxy.NewMetrics(prometheus.NewRegistry())
	proxyHandler := proxy.NewHandler(proxy.Config{
		APIKey:         credValue,
		CredentialName: credName,
		RefererURL:     cfg.Proxy.RefererURL,
		AppTitle:       cfg.Proxy.AppTitle,
	}, provider, metrics, logger)

	// The UI talks to the proxy over its public endpoint, the same way any
	// other client would.
	completer := chat.NewClient("http://127.0.0.1:"+cfg.Port+"/chat", logger)

	m, err := handlers.NewMain(completer, logger)
	if err != nil {
		log.Fatal(fmt.Errorf("error creating handlers: %w", err))
	}

	// Serve static files
	staticFS, err := fs.Sub(tinychat.StaticFS, "static")
	if err != nil {
		log.Fatal(fmt.Errorf("error mounting static files: %w", err))
	}
	fileServer := http.FileServer(http.FS(staticFS))

	// Create custom mux
	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/", m.HandleHome)
	mux.HandleFunc("/chats", m.HandleChats)
	mux.HandleFunc("/chats/cancel", m.HandleCancel)
	mux.HandleFunc("/chats/retry", m.HandleRetry)
	mux.HandleFunc("/chats/dismiss", m.HandleDismiss)
	mux.HandleFunc("/sse/messages", m.HandleSSE)
	mux.Handle("/chat", proxy.RequestID(proxy.Logging(logger, proxy.Recovery(logger, proxyHandler))))
	mux.Handle("/metrics", metrics.Handler())

	// Create custom server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			log.Printf("Failed to shutdown sse server: %v", err)
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Println("Server starting on :" + cfg.Port)
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for interrupt/terminate signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Blocking select waiting for either interrupt or server error
	select {
	case err := <-serverErrors:
		log.Printf("Server error: %v", err)

	case sig := <-shutdown:
		log.Printf("Start shutdown, signal: %v", sig)

		// Create context with timeout for shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Gracefully shutdown the server
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Graceful shutdown failed: %v", err)
			if err := srv.Close(); err != nil {
				log.Printf("Forcing server close: %v", err)
			}
		}
	}
}
