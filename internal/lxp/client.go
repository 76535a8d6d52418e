// Package lxp is a small GraphQL client for the learning platform API:
// sign-in, available tasks with deadlines, and notifications.
package lxp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	logx "lxpbot/pkg/logx"
)

// ErrUnauthorized means the upstream rejected the token or credentials.
var ErrUnauthorized = errors.New("lxp: unauthorized")

// GraphQLError is the first entry of a GraphQL "errors" array.
type GraphQLError struct {
	Message string `json:"message"`
	Code    string `json:"-"`
}

func (e *GraphQLError) Error() string { return "lxp: " + e.Message }

func (e *GraphQLError) Is(target error) bool {
	return target == ErrUnauthorized && (e.Code == "UNAUTHENTICATED" || e.Code == "FORBIDDEN")
}

type Config struct {
	Endpoint     string
	Timeout      time.Duration
	TaskLinkBase string
	// HTTPClient is the base transport; http.DefaultClient when nil.
	HTTPClient *http.Client
}

type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.TaskLinkBase = strings.TrimRight(cfg.TaskLinkBase, "/")
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{cfg: cfg, http: hc, log: log.With(logx.String("comp", "lxp"))}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message    string `json:"message"`
		Extensions struct {
			Code string `json:"code"`
		} `json:"extensions"`
	} `json:"errors"`
}

// httpClientFor returns a client that injects "Authorization: Bearer <token>"
// when token is set.
func (c *Client) httpClientFor(ctx context.Context, token string) *http.Client {
	if token == "" {
		return c.http
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
}

func (c *Client) do(ctx context.Context, op, token, query string, vars map[string]any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClientFor(ctx, token).Do(req)
	if err != nil {
		return fmt.Errorf("lxp %s: %w", op, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("lxp %s: read body: %w", op, err)
	}
	c.log.Debug("request done",
		logx.String("op", op),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("lxp %s: status %d: %w", op, resp.StatusCode, ErrUnauthorized)
	}

	var gr gqlResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		if resp.StatusCode >= 300 {
			return fmt.Errorf("lxp %s: status %d", op, resp.StatusCode)
		}
		return fmt.Errorf("lxp %s: decode: %w", op, err)
	}
	if len(gr.Errors) > 0 {
		e := gr.Errors[0]
		return fmt.Errorf("lxp %s: %w", op, &GraphQLError{Message: e.Message, Code: e.Extensions.Code})
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("lxp %s: status %d", op, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("lxp %s: decode data: %w", op, err)
	}
	return nil
}
