// Package identity talks to the hosted auth service (a GoTrue-compatible
// REST API) that issues and verifies e-mail magic links.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/webklar/booking-platform/pkg/logging"
)

const defaultTimeout = 15 * time.Second

// MetadataAppointmentBooking marks users that signed in from the booking flow.
const MetadataAppointmentBooking = "appointment_booking"

// MagicLinkRequest asks the auth service to e-mail a sign-in link.
type MagicLinkRequest struct {
	Email      string
	RedirectTo string
	Data       map[string]any
}

// User is the auth service's view of an account.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// AppointmentBooking reports whether the user signed in from the booking flow.
func (u User) AppointmentBooking() bool {
	v, _ := u.UserMetadata[MetadataAppointmentBooking].(bool)
	return v
}

// Session is returned after a magic link is verified.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// APIError is a non-2xx response from the auth service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity: auth service returned %d: %s", e.Status, e.Message)
}

// RateLimited reports whether the auth service throttled the request.
func (e *APIError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests ||
		strings.Contains(strings.ToLower(e.Message), "rate limit") ||
		strings.Contains(e.Code, "rate_limit")
}

// LinkInvalid reports whether a magic link or token has expired or was
// already used. Address validation failures do not count.
func (e *APIError) LinkInvalid() bool {
	switch e.Code {
	case "otp_expired", "flow_state_expired", "bad_code_verifier":
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "expired")
}

// AddressRejected reports a 4xx refusal of the e-mail address itself,
// which resending cannot fix.
func (e *APIError) AddressRejected() bool {
	if e.Status < 400 || e.Status >= 500 || e.Status == http.StatusTooManyRequests {
		return false
	}
	switch e.Code {
	case "validation_failed", "email_address_invalid", "email_address_not_authorized":
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "email address")
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// Client wraps the auth service REST endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logging.Logger
}

// NewClient constructs an auth service client.
func NewClient(baseURL, apiKey string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		logger:     logger.Component("identity"),
	}
}

// SendMagicLink requests a sign-in e-mail. New users are created on demand.
func (c *Client) SendMagicLink(ctx context.Context, req MagicLinkRequest) error {
	path := "/auth/v1/otp"
	if req.RedirectTo != "" {
		path += "?" + url.Values{"redirect_to": {req.RedirectTo}}.Encode()
	}
	body := map[string]any{
		"email":       req.Email,
		"create_user": true,
	}
	if len(req.Data) > 0 {
		body["data"] = req.Data
	}
	if err := c.doJSON(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("identity: send magic link: %w", err)
	}
	return nil
}

// VerifyTokenHash exchanges the token hash from a magic link for a session.
func (c *Client) VerifyTokenHash(ctx context.Context, tokenHash, linkType string) (*Session, error) {
	if linkType == "" {
		linkType = "magiclink"
	}
	body := map[string]string{
		"token_hash": tokenHash,
		"type":       linkType,
	}
	var session Session
	if err := c.doJSON(ctx, http.MethodPost, "/auth/v1/verify", body, &session); err != nil {
		return nil, fmt.Errorf("identity: verify token: %w", err)
	}
	return &session, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	endpoint := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeAPIError(resp.StatusCode, respBody)
		c.logger.Warn("auth service non-2xx response", "status", resp.StatusCode, "path", strings.SplitN(path, "?", 2)[0], "message", apiErr.Message)
		return apiErr
	}

	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	var payload struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"error_code"`
	}
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Code = payload.ErrorCode
		for _, m := range []string{payload.Msg, payload.Message, payload.ErrorDescription, payload.Error} {
			if strings.TrimSpace(m) != "" {
				apiErr.Message = m
				break
			}
		}
	}
	if apiErr.Message == "" {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 300 {
			msg = msg[:300]
		}
		if msg == "" {
			msg = http.StatusText(status)
		}
		apiErr.Message = msg
	}
	return apiErr
}
