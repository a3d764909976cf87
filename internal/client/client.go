// Package client talks to the civicpoints HTTP API from a device.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/civicpoints/internal/model"
	"github.com/dukerupert/civicpoints/internal/points"
)

// ErrUnauthorized is returned when the token is missing, expired or wrong.
var ErrUnauthorized = errors.New("client: unauthorized")

// Config holds API client configuration.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// APIError is a non-2xx response whose code is outside the ledger taxonomy.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

// Client is a thin JSON client for the civicpoints API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// do sends a JSON request and decodes a JSON response into out. Transport
// failures and 5xx responses are reported as points.ErrBackendUnavailable;
// ledger error codes map back to their sentinels.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, points.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.decodeError(method, path, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func (c *Client) decodeError(method, path string, resp *http.Response) error {
	var eb errorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &eb); err != nil {
		eb.Error = strings.TrimSpace(string(data))
	}

	if sentinel := points.FromCode(eb.Code); sentinel != nil {
		return fmt.Errorf("%s %s: %w", method, path, sentinel)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}
	apiErr := &APIError{Status: resp.StatusCode, Code: eb.Code, Message: eb.Error}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%s %s: %w: %w", method, path, points.ErrBackendUnavailable, apiErr)
	}
	return fmt.Errorf("%s %s: %w", method, path, apiErr)
}

// Session is the result of a PIN login.
type Session struct {
	Token     string `json:"token"`
	MemberID  int64  `json:"member_id"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expires_at"`
}

// Login exchanges a member PIN for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, memberID int64, pin string) (*Session, error) {
	var s Session
	err := c.do(ctx, "POST", "/api/sessions", map[string]any{"member_id": memberID, "pin": pin}, &s)
	if err != nil {
		return nil, err
	}
	c.token = s.Token
	return &s, nil
}

func (c *Client) ListActiveRewards(ctx context.Context) ([]model.Reward, error) {
	var rewards []model.Reward
	if err := c.do(ctx, "GET", "/api/rewards", nil, &rewards); err != nil {
		return nil, err
	}
	return rewards, nil
}

func (c *Client) GetBalance(ctx context.Context, memberID int64) (int, error) {
	var pb model.PointBalance
	if err := c.do(ctx, "GET", "/api/members/"+strconv.FormatInt(memberID, 10)+"/points", nil, &pb); err != nil {
		return 0, err
	}
	return pb.Balance, nil
}

func (c *Client) MemberConversions(ctx context.Context, memberID int64) ([]model.Conversion, error) {
	var conversions []model.Conversion
	if err := c.do(ctx, "GET", "/api/members/"+strconv.FormatInt(memberID, 10)+"/conversions", nil, &conversions); err != nil {
		return nil, err
	}
	return conversions, nil
}

func (c *Client) GetSettings(ctx context.Context) (model.Settings, error) {
	var s model.Settings
	if err := c.do(ctx, "GET", "/api/settings", nil, &s); err != nil {
		return model.Settings{}, err
	}
	return s, nil
}

func (c *Client) SaveSettings(ctx context.Context, s model.Settings) (model.Settings, error) {
	var saved model.Settings
	if err := c.do(ctx, "PUT", "/api/settings", s, &saved); err != nil {
		return model.Settings{}, err
	}
	return saved, nil
}

// Redeem spends the logged-in member's points on a reward.
func (c *Client) Redeem(ctx context.Context, rewardID int64) (*model.Conversion, error) {
	var conv model.Conversion
	if err := c.do(ctx, "POST", "/api/rewards/"+strconv.FormatInt(rewardID, 10)+"/redeem", nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Conversions lists conversions in the given status. Admin only.
func (c *Client) Conversions(ctx context.Context, status model.ConversionStatus) ([]model.Conversion, error) {
	var conversions []model.Conversion
	path := "/api/conversions?status=" + url.QueryEscape(string(status))
	if err := c.do(ctx, "GET", path, nil, &conversions); err != nil {
		return nil, err
	}
	return conversions, nil
}

func (c *Client) Approve(ctx context.Context, conversionID int64) (*model.Conversion, error) {
	var conv model.Conversion
	if err := c.do(ctx, "POST", "/api/conversions/"+strconv.FormatInt(conversionID, 10)+"/approve", nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *Client) Reject(ctx context.Context, conversionID int64, notes string) (*model.Conversion, error) {
	var conv model.Conversion
	body := map[string]string{"notes": notes}
	if err := c.do(ctx, "POST", "/api/conversions/"+strconv.FormatInt(conversionID, 10)+"/reject", body, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}
