// Package gateway is the client side of the remote identity provider. Only
// the four calls the auth core needs are modelled.
package gateway

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

	"github.com/dmitrijs2005/perfectkey/internal/logging"
	"github.com/dmitrijs2005/perfectkey/internal/server/models"
	"github.com/google/uuid"
)

const (
	apiPrefix = "/identity/api/v1/Auth"

	DefaultTimeout = 5 * time.Second
	// DefaultTokenLifetime applies when the gateway omits expiresAt.
	DefaultTokenLifetime = 60 * time.Minute
)

var (
	// ErrUnavailable covers network failures, timeouts, 5xx answers and
	// unusable payloads. Callers fall back to local verification.
	ErrUnavailable = errors.New("identity gateway unavailable")
	// ErrRejected is a definite 4xx answer.
	ErrRejected = errors.New("identity gateway rejected request")

	ErrBadCredentials = fmt.Errorf("%w: bad credentials", ErrRejected)
	ErrUnknownUser    = fmt.Errorf("%w: unknown user", ErrRejected)
)

// StatusError carries the HTTP status and the gateway's own message.
type StatusError struct {
	StatusCode int
	Message    string
	kind       error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v (status %d)", e.kind, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return e.kind }

// Identity is the user projection returned by a successful login.
type Identity struct {
	ID             int64  `json:"id"`
	GUID           string `json:"guid"`
	UserName       string `json:"username"`
	FullName       string `json:"fullName"`
	Email          string `json:"email"`
	AvatarURL      string `json:"avatarUrl"`
	HotelCode      string `json:"hotelCode"`
	HotelName      string `json:"hotelName"`
	HotelAvatarURL string `json:"hotelAvatarUrl"`
}

// TokenEnvelope is the gateway's token pair answer.
type TokenEnvelope struct {
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
	User         *Identity
}

type Client interface {
	Login(ctx context.Context, userName, password, hotelCode string) (*TokenEnvelope, error)
	Refresh(ctx context.Context, refreshToken, hotelCode string) (*TokenEnvelope, error)
	Logout(ctx context.Context, refreshToken, hotelCode string) error
	Hotels(ctx context.Context, userName string) ([]models.Hotel, error)
}

// HTTPClient talks JSON over HTTP. Every call is bounded by the configured
// timeout on top of whatever deadline ctx already has.
type HTTPClient struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  logging.Logger
	now     func() time.Time
}

func NewHTTPClient(baseURL string, timeout time.Duration, logger logging.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    &http.Client{},
		logger:  logger.With("module", "identity_gateway"),
		now:     time.Now,
	}
}

type loginRequest struct {
	UserName  string `json:"username"`
	Password  string `json:"password"`
	HotelCode string `json:"hotelCode"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	HotelCode    string `json:"hotelCode"`
}

type envelopeDTO struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresAt    gatewayTime `json:"expiresAt"`
	User         *Identity   `json:"user"`
}

type errorDTO struct {
	Message string `json:"message"`
}

func (c *HTTPClient) Login(ctx context.Context, userName, password, hotelCode string) (*TokenEnvelope, error) {
	resp, err := c.do(ctx, http.MethodPost, apiPrefix+"/login", loginRequest{userName, password, hotelCode})
	if err != nil {
		return nil, err
	}
	env, err := c.envelope(resp)
	if err != nil {
		return nil, err
	}
	if env.User != nil {
		if env.User.UserName == "" {
			env.User.UserName = userName
		}
		if env.User.HotelCode == "" {
			env.User.HotelCode = hotelCode
		}
	}
	return env, nil
}

func (c *HTTPClient) Refresh(ctx context.Context, refreshToken, hotelCode string) (*TokenEnvelope, error) {
	resp, err := c.do(ctx, http.MethodPost, apiPrefix+"/refresh-token", refreshRequest{refreshToken, hotelCode})
	if err != nil {
		return nil, err
	}
	return c.envelope(resp)
}

func (c *HTTPClient) Logout(ctx context.Context, refreshToken, hotelCode string) error {
	resp, err := c.do(ctx, http.MethodPost, apiPrefix+"/logout", refreshRequest{refreshToken, hotelCode})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *HTTPClient) Hotels(ctx context.Context, userName string) ([]models.Hotel, error) {
	resp, err := c.do(ctx, http.MethodGet, apiPrefix+"/hotels/"+url.PathEscape(userName), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var hotels []models.Hotel
	if err := json.NewDecoder(resp.Body).Decode(&hotels); err != nil {
		return nil, fmt.Errorf("%w: decode hotels: %v", ErrUnavailable, err)
	}
	return hotels, nil
}

// do sends the request and returns the response only for 2xx answers; the
// caller owns the body. Request bodies are never logged.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			cancel()
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		c.logger.Warn(ctx, "gateway call failed", "path", path, "error", errorKind(err))
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, errorKind(err))
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	c.logger.Warn(ctx, "gateway call rejected", "path", path, "status", resp.StatusCode)
	return nil, statusError(resp)
}

func (c *HTTPClient) envelope(resp *http.Response) (*TokenEnvelope, error) {
	defer resp.Body.Close()

	var dto envelopeDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return nil, fmt.Errorf("%w: decode token envelope: %v", ErrUnavailable, err)
	}
	if dto.Token == "" {
		return nil, fmt.Errorf("%w: no token received", ErrUnavailable)
	}

	env := &TokenEnvelope{
		Token:        dto.Token,
		RefreshToken: dto.RefreshToken,
		ExpiresAt:    dto.ExpiresAt.Time,
		User:         dto.User,
	}
	if env.ExpiresAt.IsZero() {
		env.ExpiresAt = c.now().Add(DefaultTokenLifetime)
	}
	if env.User != nil {
		if g, err := uuid.Parse(env.User.GUID); err != nil || g == uuid.Nil {
			env.User.GUID = uuid.NewString()
		}
	}
	return env, nil
}

func statusError(resp *http.Response) error {
	var dto errorDTO
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &dto)

	e := &StatusError{StatusCode: resp.StatusCode, Message: dto.Message}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		e.kind = ErrBadCredentials
	case resp.StatusCode == http.StatusNotFound:
		e.kind = ErrUnknownUser
	case resp.StatusCode >= 500:
		e.kind = ErrUnavailable
	default:
		e.kind = ErrRejected
	}
	return e
}

// errorKind describes a transport failure without echoing the URL or payload.
func errorKind(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return "timeout"
	}
	return "network error"
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// gatewayTime accepts RFC 3339 and zone-less timestamps, the latter read as UTC.
type gatewayTime struct {
	time.Time
}

var gatewayTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

func (t *gatewayTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	for _, layout := range gatewayTimeLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v
			return nil
		}
	}
	return fmt.Errorf("unsupported time %q", s)
}
