package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"console-terminal/internal/config"
	"console-terminal/internal/gateway"
	"console-terminal/internal/router"
	"console-terminal/internal/server"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	limits := router.Limits{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		MaxSessions:        cfg.MaxSessions,
	}
	runtime, err := server.New(cfg, router.DefaultChain(limits))
	if err != nil {
		log.Fatalf("build ssh server: %v", err)
	}

	startGateway(cfg)

	if err := runtime.Run(context.Background()); err != nil {
		log.Fatalf("run ssh server: %v", err)
	}
}

// startGateway brings up the HTTP line-dispatch transport when a signing
// secret is configured, and stays quiet otherwise.
func startGateway(cfg config.Config) {
	if os.Getenv("GATEWAY_HMAC_SECRET") == "" {
		log.Printf("level=info event=gateway_disabled reason=no_hmac_secret")
		return
	}

	store := gateway.NewFileMetadataStore(os.Getenv("GATEWAY_SESSION_STORE"))
	svc, err := gateway.NewService(store, server.Version)
	if err != nil {
		log.Fatalf("build gateway: %v", err)
	}

	go func() {
		log.Printf("level=info event=gateway_listening addr=%s", cfg.GatewayAddr)
		if err := http.ListenAndServe(cfg.GatewayAddr, gateway.NewHandler(svc).Routes()); err != nil {
			log.Fatalf("run gateway: %v", err)
		}
	}()
}
