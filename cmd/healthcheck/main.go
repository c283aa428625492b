// Command healthcheck probes /healthz for container health checks. It exits
// non-zero unless the service answers 200.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// healthURL derives the probe URL from HEALTHCHECK_URL or HTTP_ADDR.
func healthURL() string {
	if u := os.Getenv("HEALTHCHECK_URL"); u != "" {
		return u
	}
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/healthz"
}

func main() {
	client := &http.Client{Timeout: 3 * time.Second}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, healthURL(), nil)
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
