package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ghostpni/ghostpni/internal/config"
	apperrors "github.com/ghostpni/ghostpni/internal/errors"
)

var errAgentUnreachable = errors.New("agent unreachable")

// agentError is a non-2xx answer from a running agent.
type agentError struct {
	Status  int
	Code    string
	Message string
}

func (e *agentError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("agent returned http %d", e.Status)
	}
	return fmt.Sprintf("agent returned %s (http %d): %s", e.Code, e.Status, e.Message)
}

// agentClient talks to the HTTP API of a running agent.
type agentClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func addAgentFlags(cmd *cobra.Command) {
	cmd.Flags().String("agent", "", "agent base URL (default derived from server.host and server.port)")
	cmd.Flags().Duration("timeout", 0, "request timeout (default server.wait_timeout plus a margin)")
}

func newAgentClient(cmd *cobra.Command) (*agentClient, error) {
	base, err := cmd.Flags().GetString("agent")
	if err != nil {
		return nil, err
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(base) == "" || timeout <= 0 {
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if strings.TrimSpace(base) == "" {
			base = agentURL(cfg.Server.Host, cfg.Server.Port)
		}
		if timeout <= 0 {
			timeout = cfg.Server.WaitTimeout + 10*time.Second
		}
	}

	return &agentClient{
		baseURL: strings.TrimRight(strings.TrimSpace(base), "/"),
		token:   strings.TrimSpace(os.Getenv(config.EnvName("ADMIN_TOKEN"))),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// agentURL turns a listen address into a dialable base URL.
func agentURL(host string, port int) string {
	switch strings.TrimSpace(host) {
	case "", "0.0.0.0", "::", "[::]":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(port))
}

// do sends a request and decodes a 2xx JSON body into out when non-nil.
func (c *agentClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w at %s: %v", errAgentUnreachable, c.baseURL, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		agentErr := &agentError{Status: resp.StatusCode}
		var envelope apperrors.HTTPErrorResponse
		if json.Unmarshal(data, &envelope) == nil {
			agentErr.Code = envelope.Error.Code
			agentErr.Message = envelope.Error.Message
		}
		return agentErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
