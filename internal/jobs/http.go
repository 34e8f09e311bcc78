package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBody       = 200
)

// httpConfig: разобранный config вида http.
//
//	config:
//	  method: POST            # default: POST
//	  url: https://...        # обязательно
//	  headers: {Authorization: "Bearer ..."}
//	  body: {...}             # default: {"job": ..., "params": ...}
//	  timeout: 30s
type httpConfig struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
	Timeout time.Duration
}

func parseHTTPConfig(config map[string]any) (*httpConfig, error) {
	cfg := &httpConfig{
		Method:  strings.ToUpper(configString(config, "method", http.MethodPost)),
		URL:     configString(config, "url", ""),
		Headers: configStringMap(config, "headers"),
		Body:    config["body"],
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("%s: url is required", KindHTTP)
	}

	timeout, err := configDuration(config, "timeout", defaultHTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("%s: timeout: %w", KindHTTP, err)
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	cfg.Timeout = timeout
	return cfg, nil
}

// newHTTPFunc: вызов webhook. Ответ не 2xx считается ошибкой задачи.
func newHTTPFunc(def Definition, deps Deps) (Func, error) {
	cfg, err := parseHTTPConfig(def.Config)
	if err != nil {
		return nil, err
	}
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	jobName := def.Name

	return func(ctx context.Context, opts Options) error {
		logger := loggerFor(opts, deps)

		if opts.DryRun {
			logger.Info("dry run: http call skipped", "method", cfg.Method, "url", cfg.URL)
			return nil
		}

		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		req, err := buildHTTPRequest(ctx, cfg, jobName, opts.Params)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("http request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return fmt.Errorf("http %s %s: status %d: %s", cfg.Method, cfg.URL, resp.StatusCode, strings.TrimSpace(string(body)))
		}

		logger.Info("http call completed", "url", cfg.URL, "status", resp.StatusCode)
		return nil
	}, nil
}

func buildHTTPRequest(ctx context.Context, cfg *httpConfig, jobName string, params map[string]any) (*http.Request, error) {
	var bodyReader io.Reader
	if cfg.Method != http.MethodGet && cfg.Method != http.MethodHead {
		body := cfg.Body
		if body == nil {
			body = map[string]any{"job": jobName, "params": params}
		}
		data, err := serializeBody(body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bodyReader)
	if err != nil {
		return nil, err
	}
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}
	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Cronlock-Job", jobName)
	return req, nil
}

func serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

func loggerFor(opts Options, deps Deps) *slog.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	if deps.Logger != nil {
		return deps.Logger
	}
	return slog.Default()
}
