// Command healthcheck probes the leadsync health endpoint and exits non-zero
// when the server is not healthy. It is used as the container HEALTHCHECK.
package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"time"
)

const timeout = 2 * time.Second

func main() {
	os.Exit(check(healthURL(os.Getenv("LEADSYNC_LISTEN_ADDR"))))
}

func check(url string) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 1
	}

	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 1
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Status != "ok" {
		return 1
	}

	return 0
}

// healthURL builds the probe URL from the listen address. A bind-all or empty
// host is probed on loopback since the check runs inside the same container.
func healthURL(listenAddr string) string {
	return "http://" + normalizeAddr(listenAddr) + "/api/v1/health"
}

func normalizeAddr(raw string) string {
	const fallback = "127.0.0.1:8080"
	if raw == "" {
		return fallback
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return fallback
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
