package gatewayclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/kuncarous/nextmu-remix/internal/api"
	"github.com/kuncarous/nextmu-remix/internal/domain"
)

const (
	startUploadPath = "/api/update/start-upload"
	uploadChunkPath = "/api/update/upload-chunk"
)

// Client talks to the portal gateway's upload endpoints on behalf of one
// portal session. It implements domain.UpdateService.
type Client struct {
	baseURL string
	mode    domain.Mode
	http    *http.Client
}

// Option configures a Client.
type Option func(*options)

type options struct {
	base    *http.Client
	timeout time.Duration
}

// WithHTTPClient sets the client used underneath the session transport.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.base = c }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// New creates a Client for the gateway at baseURL. sessionID is sent as a
// bearer token so the gateway answers 401 instead of redirecting.
func New(baseURL, sessionID string, mode domain.Mode, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid gateway url %q", baseURL)
	}
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}

	o := options{timeout: 60 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	ctx := context.Background()
	if o.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.base)
	}
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: sessionID}))
	hc.Timeout = o.timeout
	// A redirect means the session was rejected and the gateway wants a
	// browser login.
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		mode:    mode,
		http:    hc,
	}, nil
}

var _ domain.UpdateService = (*Client)(nil)

// StartUploadVersion opens or resumes an upload session through the gateway.
func (c *Client) StartUploadVersion(ctx context.Context, req domain.StartUploadRequest) (*domain.StartUploadResponse, error) {
	body := api.StartUploadBody{
		Mode:      string(c.mode),
		VersionID: req.VersionID,
		Hash:      req.Hash,
		Type:      req.Type,
		ChunkSize: req.ChunkSize,
		FileSize:  req.FileSize,
	}
	var resp domain.StartUploadResponse
	if err := c.post(ctx, startUploadPath, body, &resp); err != nil {
		return nil, fmt.Errorf("start upload: %w", err)
	}
	return &resp, nil
}

// UploadVersionChunk sends one chunk through the gateway.
func (c *Client) UploadVersionChunk(ctx context.Context, req domain.UploadChunkRequest) error {
	body := api.UploadChunkBody{
		Mode:         string(c.mode),
		UploadID:     req.UploadID,
		ConcurrentID: req.ConcurrentID,
		Offset:       int64(req.Offset),
		Data:         base64.StdEncoding.EncodeToString(req.Data),
	}
	if err := c.post(ctx, uploadChunkPath, body, nil); err != nil {
		return fmt.Errorf("upload chunk %d: %w", req.Offset, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &domain.RemoteError{Category: domain.CategoryUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.RemoteError{Category: domain.CategoryInternal, Message: "decode response: " + err.Error()}
	}
	return nil
}

type errorBody struct {
	Error  string `json:"error"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func decodeError(resp *http.Response) error {
	cat := categoryForStatus(resp.StatusCode)
	msg := resp.Status
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		msg = "session rejected, login required"
	}

	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
		if body.Field != "" {
			msg = fmt.Sprintf("%s: %s %s", body.Error, body.Field, body.Reason)
		}
	}
	return &domain.RemoteError{Category: cat, Message: msg}
}

func categoryForStatus(code int) domain.Category {
	switch {
	case code >= 300 && code < 400:
		return domain.CategoryUnauthenticated
	case code == http.StatusBadRequest, code == http.StatusRequestEntityTooLarge:
		return domain.CategoryInvalidArgument
	case code == http.StatusUnauthorized:
		return domain.CategoryUnauthenticated
	case code == http.StatusForbidden:
		return domain.CategoryPermissionDenied
	case code >= 500:
		return domain.CategoryUnavailable
	default:
		return domain.CategoryInternal
	}
}
