package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/sparqchat/sparqui/internal/config"
)

const (
	JSONContentType = "application/json"

	apiRequestTimeout = time.Second * 30
)

type APIErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client talks to the chat backend. The backend binds identity to a cookie,
// so both underlying http clients share one jar. Streaming endpoints go
// through a client without an overall timeout: a generation stream may
// legitimately outlive any fixed deadline.
type Client struct {
	httpClient   *http.Client
	streamClient *http.Client
	Config       *config.Config
}

// NewClient creates a backend API client.
func NewClient(cfg config.Config) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		slog.Error("Failed to create cookie jar", "error", err)
		return nil, err
	}
	return &Client{
		httpClient:   &http.Client{Timeout: apiRequestTimeout, Jar: jar},
		streamClient: &http.Client{Jar: jar},
		Config:       &cfg,
	}, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		reqBytes, err := json.Marshal(payload)
		if err != nil {
			slog.Error("Failed to marshal request body", "path", path, "error", err)
			return err
		}
		body = bytes.NewReader(reqBytes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Config.BaseURL+path, body)
	if err != nil {
		slog.Error("Failed to build request", "path", path, "error", err)
		return err
	}
	req.Header.Set("Content-Type", JSONContentType)
	req.Header.Set("Accept", JSONContentType)

	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Config.BaseURL+path, nil)
	if err != nil {
		slog.Error("Failed to build request", "path", path, "error", err)
		return err
	}
	req.Header.Set("Accept", JSONContentType)

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("Failed to send request", "path", req.URL.Path, "error", err)
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		slog.Error("Failed to read response body", "path", req.URL.Path, "error", err)
		return err
	}

	if err := handleAPIError(res, body); err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			slog.Error("Failed to unmarshal response body", "path", req.URL.Path, "error", err)
			return err
		}
	}
	return nil
}

// openStream issues a POST whose response body is a chunked text stream.
// The caller owns the returned body and must close it.
func (c *Client) openStream(ctx context.Context, path string, payload any) (io.ReadCloser, error) {
	reqBytes, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal stream request body", "path", path, "error", err)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Config.BaseURL+path, bytes.NewReader(reqBytes))
	if err != nil {
		slog.Error("Failed to build stream request", "path", path, "error", err)
		return nil, err
	}
	req.Header.Set("Content-Type", JSONContentType)

	res, err := c.streamClient.Do(req)
	if err != nil {
		slog.Error("Failed to send stream request", "path", path, "error", err)
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		res.Body.Close()
		return nil, fmt.Errorf("Api request failed: status code %d, message %s", res.StatusCode, string(body))
	}
	return res.Body, nil
}

func handleAPIError(res *http.Response, body []byte) error {
	if res.StatusCode != http.StatusOK {
		apiErr := APIErrorResponse{}
		if err := json.Unmarshal(body, &apiErr); err != nil {
			return fmt.Errorf("Api request failed: status code %d", res.StatusCode)
		}
		return fmt.Errorf("Api request failed: status code %d, message %s", res.StatusCode, apiErr.Message)
	}
	return nil
}
