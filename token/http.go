package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// IssuePath is the token server endpoint issuing tokens.
const IssuePath = "/v1/token"

// IssueRequest is the body of a token request.
type IssueRequest struct {
	Channel string `json:"channel"`
	UID     uint32 `json:"uid"`
	Role    Role   `json:"role,omitempty"`
}

// IssueResponse is the body of a successful token response.
type IssueResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HTTPProvider fetches tokens from a token server.
type HTTPProvider struct {
	BaseURL string
	Role    Role
	Client  *http.Client
}

// NewHTTPProvider creates a provider for the server at baseURL.
func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Role:    RolePublisher,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// IsConfigured reports whether a server URL is set.
func (p *HTTPProvider) IsConfigured() bool {
	return p.BaseURL != ""
}

// Generate implements Provider.
func (p *HTTPProvider) Generate(ctx context.Context, channelID string, uid uint32) (string, error) {
	if !p.IsConfigured() {
		return "", ErrNotConfigured
	}
	if channelID == "" {
		return "", ErrEmptyChannel
	}

	body, err := json.Marshal(IssueRequest{Channel: channelID, UID: uid, Role: p.Role})
	if err != nil {
		return "", fmt.Errorf("encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+IssuePath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var er errorResponse
		_ = json.Unmarshal(data, &er)
		logrus.WithFields(logrus.Fields{
			"function":   "HTTPProvider.Generate",
			"status":     resp.StatusCode,
			"channel_id": channelID,
			"error":      er.Error,
		}).Warn("Token server rejected request")
		return "", fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, er.Error)
	}

	var out IssueResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "HTTPProvider.Generate",
		"channel_id": channelID,
		"uid":        uid,
		"token":      Inspect(out.Token).Preview,
	}).Debug("Token fetched")

	return out.Token, nil
}
