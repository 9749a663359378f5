package updatesvc

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/kuncarous/nextmu-remix/internal/domain"
)

const (
	serviceName              = "nextmu.v1.UpdateService"
	methodStartUploadVersion = "/" + serviceName + "/StartUploadVersion"
	methodUploadVersionChunk = "/" + serviceName + "/UploadVersionChunk"

	defaultReadyTimeout = 5 * time.Second
	defaultCallTimeout  = 30 * time.Second
)

// Options configures a Client.
type Options struct {
	Address      string
	TLS          bool
	ReadyTimeout time.Duration
	CallTimeout  time.Duration
	Logger       *slog.Logger

	// DialOptions are appended after the defaults. Tests use it to dial
	// through bufconn.
	DialOptions []grpc.DialOption
}

// Client owns one connection to an update service. Create it once at
// startup with Dial and release it with Close.
type Client struct {
	conn        *grpc.ClientConn
	address     string
	secure      bool
	callTimeout time.Duration
	logger      *slog.Logger
}

// Dial connects to an update service and waits up to ReadyTimeout for the
// connection to become ready. A service that is not ready yet is logged and
// the client is returned anyway; gRPC keeps reconnecting in the background.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("update service address is required")
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaultReadyTimeout
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	transport := insecure.NewCredentials()
	if opts.TLS {
		transport = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(transport),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(codec{})),
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(opts.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial update service %s: %w", opts.Address, err)
	}

	c := &Client{
		conn:        conn,
		address:     opts.Address,
		secure:      opts.TLS,
		callTimeout: opts.CallTimeout,
		logger:      opts.Logger.With("update_service", opts.Address),
	}

	readyCtx, cancel := context.WithTimeout(ctx, opts.ReadyTimeout)
	defer cancel()
	if err := c.waitReady(readyCtx); err != nil {
		c.logger.Warn("update service not ready", "timeout", opts.ReadyTimeout, "state", conn.GetState().String())
	} else {
		c.logger.Info("update service connected")
	}
	return c, nil
}

func (c *Client) waitReady(ctx context.Context) error {
	c.conn.Connect()
	for {
		state := c.conn.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if state == connectivity.Shutdown {
			return fmt.Errorf("connection to %s is shut down", c.address)
		}
		if !c.conn.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
	}
}

// Ready reports an error unless the connection is ready or idle. An idle
// connection is woken up so the next check can see it.
func (c *Client) Ready(ctx context.Context) error {
	switch state := c.conn.GetState(); state {
	case connectivity.Ready:
		return nil
	case connectivity.Idle:
		c.conn.Connect()
		return nil
	default:
		return fmt.Errorf("update service %s is %s", c.address, state)
	}
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// WithTokenSource returns an UpdateService that authenticates every call with
// a bearer token from ts.
func (c *Client) WithTokenSource(ts oauth2.TokenSource) *Caller {
	return &Caller{
		client: c,
		creds:  bearerCredentials{source: ts, requireTLS: c.secure},
	}
}

// Caller issues update service RPCs on behalf of one principal.
type Caller struct {
	client *Client
	creds  bearerCredentials
}

var _ domain.UpdateService = (*Caller)(nil)

// StartUploadVersion opens or resumes an upload session.
func (c *Caller) StartUploadVersion(ctx context.Context, req domain.StartUploadRequest) (*domain.StartUploadResponse, error) {
	resp := &startUploadVersionResponse{}
	if err := c.invoke(ctx, methodStartUploadVersion, &startUploadVersionRequest{req}, resp); err != nil {
		return nil, err
	}
	return &resp.StartUploadResponse, nil
}

// UploadVersionChunk sends one chunk.
func (c *Caller) UploadVersionChunk(ctx context.Context, req domain.UploadChunkRequest) error {
	return c.invoke(ctx, methodUploadVersionChunk, &uploadVersionChunkRequest{req}, &uploadVersionChunkResponse{})
}

func (c *Caller) invoke(ctx context.Context, method string, req, resp wireMessage) error {
	callCtx, cancel := context.WithTimeout(ctx, c.client.callTimeout)
	defer cancel()

	start := time.Now()
	err := c.client.conn.Invoke(callCtx, method, req, resp, grpc.PerRPCCredentials(c.creds))
	if err != nil {
		c.client.logger.Debug("update service call failed",
			"method", method,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		)
		return fromStatus(ctx, method, err)
	}
	return nil
}

// bearerCredentials attaches "authorization: Bearer <token>" to each call.
type bearerCredentials struct {
	source     oauth2.TokenSource
	requireTLS bool
}

func (b bearerCredentials) GetRequestMetadata(ctx context.Context, _ ...string) (map[string]string, error) {
	if b.source == nil {
		return nil, status.Error(codes.Unauthenticated, "no access token")
	}
	tok, err := b.source.Token()
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "access token: %v", err)
	}
	if tok.AccessToken == "" {
		return nil, status.Error(codes.Unauthenticated, "no access token")
	}
	return map[string]string{"authorization": tok.Type() + " " + tok.AccessToken}, nil
}

func (b bearerCredentials) RequireTransportSecurity() bool {
	return b.requireTLS
}
