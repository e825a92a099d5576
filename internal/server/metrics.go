package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/ghostpni/ghostpni/internal/errors"
	"github.com/ghostpni/ghostpni/internal/observability"
)

const (
	defaultExporterPort   = 9090
	prometheusContentType = "text/plain; version=0.0.4"
)

var metricsProxyClient = &http.Client{Timeout: 5 * time.Second}

// Headers that describe the exporter connection rather than the payload.
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// MetricsHandler serves the Prometheus exporter's output on the API port so
// a single scrape target covers HTTP, dispatch and decoy metrics.
// configuredPort is used until the exporter reports the port it bound.
func MetricsHandler(configuredPort int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if observability.PrometheusExporter == nil {
			apperrors.RespondWithError(w, r, apperrors.NewServiceUnavailableError("Metrics exporter not initialized"))
			return
		}

		target := exporterURL(configuredPort)
		resp, err := scrapeExporter(r.Context(), target, r.Header.Get("Accept"))
		if err != nil {
			envelope := apperrors.Wrap(r.Context(), apperrors.CodeExternalService, err, "Prometheus exporter unavailable")
			envelope, _ = envelope.WithContext(map[string]interface{}{"metrics_url": target})
			apperrors.RespondWithError(w, r, envelope)
			return
		}
		defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

		copyExporterHeaders(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil && observability.ServerLogger != nil {
			observability.ServerLogger.Warn("Failed to write metrics response", zap.Error(err))
		}
	}
}

func exporterURL(configuredPort int) string {
	port := observability.GetMetricsPort()
	if port == 0 {
		port = configuredPort
	}
	if port == 0 {
		port = defaultExporterPort
	}
	return fmt.Sprintf("http://127.0.0.1:%d/metrics", port)
}

func scrapeExporter(ctx context.Context, target, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return metricsProxyClient.Do(req)
}

func copyExporterHeaders(dst, src http.Header) {
	for key, values := range src {
		if _, hop := hopByHopHeaders[http.CanonicalHeaderKey(key)]; hop {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
	if dst.Get("Content-Type") == "" {
		dst.Set("Content-Type", prometheusContentType)
	}
}
