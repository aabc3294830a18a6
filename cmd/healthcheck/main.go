// Command healthcheck probes the bot's /healthz endpoint for container health checks.
// It exits non-zero unless the endpoint answers 200.
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"time"
)

func main() {
	port := "8080"
	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		if _, p, err := net.SplitHostPort(addr); err == nil && p != "" {
			port = p
		}
	}

	client := &http.Client{Timeout: 3 * time.Second}
	ctx := context.Background()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://localhost:"+port+"/healthz", nil)
	if err != nil {
		os.Exit(1)
	}
	resp, err := client.Do(req)
	if err != nil {
		os.Exit(1)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
