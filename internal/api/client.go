package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/starford/intentmarket/internal/ledger"
)

// Client submits signed transactions to a running API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. http://localhost:8080/api.
	BaseURL string
	// Token is sent as a Bearer credential when non-empty.
	Token string
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api client: base url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
	}, nil
}

// Error is a non-2xx API response.
type Error struct {
	Status  int
	Message string
	Code    uint32
	Name    string
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("api: %d: %s (code %d): %s", e.Status, e.Name, e.Code, e.Message)
	}
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

// Submit posts tx to /transactions and returns the receipt.
func (c *Client) Submit(ctx context.Context, tx *ledger.Transaction) (*Receipt, error) {
	wire, err := tx.Encode()
	if err != nil {
		return nil, fmt.Errorf("api client: encode transaction: %w", err)
	}
	body, err := json.Marshal(SubmitTransactionRequest{Transaction: wire})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("api client: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api client: submit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, parseError(resp)
	}
	var receipt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, fmt.Errorf("api client: decode receipt: %w", err)
	}
	return &receipt, nil
}

func parseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &Error{Status: resp.StatusCode}
	var body errResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		apiErr.Message, apiErr.Code, apiErr.Name = body.Error, body.Code, body.Name
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
