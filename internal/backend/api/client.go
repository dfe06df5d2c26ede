package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"resty.dev/v3"

	"github.com/slok/wrapperctl/internal/log"
	"github.com/slok/wrapperctl/internal/model"
)

// ClientConfig is the configuration for the backend API client.
type ClientConfig struct {
	// BaseURL is the backend API URL, e.g. https://api.example.com/api.
	BaseURL string
	// Token is sent as bearer token when set.
	Token string
	// Timeout is the default timeout of each request.
	Timeout time.Duration
	// UserAgent is sent on every request.
	UserAgent string
	// HTTPClient is the underlying HTTP client, mainly for tests.
	HTTPClient *http.Client
	Logger     log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "wrapperctl"
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "backend.API"})
	return nil
}

// Client is a backend.Client that talks to the backend REST API.
type Client struct {
	cli    *resty.Client
	logger log.Logger
}

// NewClient returns a new backend API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var cli *resty.Client
	if cfg.HTTPClient != nil {
		cli = resty.NewWithClient(cfg.HTTPClient)
	} else {
		cli = resty.New()
	}
	cli.SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", cfg.UserAgent)
	if cfg.Token != "" {
		cli.SetAuthToken(cfg.Token)
	}

	return &Client{cli: cli, logger: cfg.Logger}, nil
}

// Close releases the client resources.
func (c *Client) Close() error { return c.cli.Close() }

// UploadFile uploads a source file as multipart form.
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader) (string, error) {
	var result UploadResponse
	resp, err := c.cli.R().
		SetContext(ctx).
		SetFileReader("file", name, r).
		SetResult(&result).
		Post("/resources/wrappers/files/upload")
	if err := c.handle(ctx, resp, err); err != nil {
		return "", fmt.Errorf("could not upload file: %w", err)
	}
	if result.FileID == "" {
		return "", fmt.Errorf("upload response without file id")
	}

	c.logger.Debugf("Uploaded file %s as %s", name, result.FileID)
	return result.FileID, nil
}

// GenerateWrapper requests a new wrapper generation.
func (c *Client) GenerateWrapper(ctx context.Context, req model.GenerateRequest) (*model.Wrapper, error) {
	var result WrapperResponse
	resp, err := c.cli.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(FromModelGenerateRequest(req)).
		SetResult(&result).
		Post("/resources/wrappers/generate")
	if err := c.handle(ctx, resp, err); err != nil {
		return nil, fmt.Errorf("could not generate wrapper: %w", err)
	}
	if result.WrapperID == "" {
		return nil, fmt.Errorf("generate response without wrapper id")
	}

	w := result.ToModel()
	return &w, nil
}

// GetWrapper returns a wrapper.
func (c *Client) GetWrapper(ctx context.Context, wrapperID string) (*model.Wrapper, error) {
	var result WrapperResponse
	resp, err := c.cli.R().
		SetContext(ctx).
		SetPathParam("wrapperID", wrapperID).
		SetResult(&result).
		Get("/resources/wrappers/{wrapperID}")
	if err := c.handle(ctx, resp, err); err != nil {
		return nil, fmt.Errorf("could not get wrapper %s: %w", wrapperID, err)
	}

	w := result.ToModel()
	if !w.Status.Known() {
		c.logger.Warningf("Wrapper %s has unknown status %q", wrapperID, w.Status)
	}
	return &w, nil
}

// GetIndicator returns an indicator.
func (c *Client) GetIndicator(ctx context.Context, indicatorID string) (*model.Indicator, error) {
	var result IndicatorResponse
	resp, err := c.cli.R().
		SetContext(ctx).
		SetPathParam("indicatorID", indicatorID).
		SetResult(&result).
		Get("/indicators/{indicatorID}")
	if err := c.handle(ctx, resp, err); err != nil {
		return nil, fmt.Errorf("could not get indicator %s: %w", indicatorID, err)
	}

	ind := result.ToModel()
	return &ind, nil
}

// LinkResource attaches a resource to an indicator.
func (c *Client) LinkResource(ctx context.Context, indicatorID, resourceID string) error {
	resp, err := c.cli.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetPathParam("indicatorID", indicatorID).
		SetBody(LinkRequest{ResourceID: resourceID}).
		Post("/indicators/{indicatorID}/resources")
	if err := c.handle(ctx, resp, err); err != nil {
		return fmt.Errorf("could not link resource %s to indicator %s: %w", resourceID, indicatorID, err)
	}
	return nil
}

// UnlinkResource detaches a resource from an indicator.
func (c *Client) UnlinkResource(ctx context.Context, indicatorID, resourceID string) error {
	resp, err := c.cli.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"indicatorID": indicatorID,
			"resourceID":  resourceID,
		}).
		Delete("/indicators/{indicatorID}/resources/{resourceID}")
	if err := c.handle(ctx, resp, err); err != nil {
		return fmt.Errorf("could not unlink resource %s from indicator %s: %w", resourceID, indicatorID, err)
	}
	return nil
}

// DeleteResource deletes a resource.
func (c *Client) DeleteResource(ctx context.Context, resourceID string) error {
	resp, err := c.cli.R().
		SetContext(ctx).
		SetPathParam("resourceID", resourceID).
		Delete("/resources/{resourceID}")
	if err := c.handle(ctx, resp, err); err != nil {
		return fmt.Errorf("could not delete resource %s: %w", resourceID, err)
	}
	return nil
}

// handle maps transport and API errors.
func (c *Client) handle(ctx context.Context, resp *resty.Response, err error) error {
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("request failed: %w", err)
	}

	c.logger.Debugf("%s %s: %d", resp.Request.Method, resp.Request.URL, resp.StatusCode())
	if !resp.IsError() {
		return nil
	}

	msg := http.StatusText(resp.StatusCode())
	var env ErrorEnvelope
	if jerr := json.Unmarshal([]byte(resp.String()), &env); jerr == nil && env.Error.Message != "" {
		msg = env.Error.Message
	}

	switch resp.StatusCode() {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, model.ErrNotFound)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%s: %w", msg, model.ErrNotValid)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", msg, model.ErrAlreadyExists)
	}
	return fmt.Errorf("API error (status %d): %s", resp.StatusCode(), msg)
}
