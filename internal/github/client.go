package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	gogithub "github.com/google/go-github/v60/github"
	"golang.org/x/oauth2"
)

// ErrAssetNotFound indicates the release or the named asset does not exist.
var ErrAssetNotFound = errors.New("release asset not found")

// AssetRef names a release asset as owner/repo@tag:asset.
type AssetRef struct {
	Owner string
	Repo  string
	Tag   string
	Asset string
}

func (r AssetRef) String() string {
	return fmt.Sprintf("%s/%s@%s:%s", r.Owner, r.Repo, r.Tag, r.Asset)
}

// ParseAssetRef parses owner/repo@tag:asset.
func ParseAssetRef(s string) (AssetRef, error) {
	repoPart, rest, ok := strings.Cut(s, "@")
	if !ok {
		return AssetRef{}, fmt.Errorf("asset ref %q: missing @tag", s)
	}
	owner, repo, ok := strings.Cut(repoPart, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return AssetRef{}, fmt.Errorf("asset ref %q: expected owner/repo", s)
	}
	tag, asset, ok := strings.Cut(rest, ":")
	if !ok || tag == "" || asset == "" {
		return AssetRef{}, fmt.Errorf("asset ref %q: expected tag:asset", s)
	}
	return AssetRef{Owner: owner, Repo: repo, Tag: tag, Asset: asset}, nil
}

// ReleaseClient reads release assets through the GitHub REST API.
type ReleaseClient struct {
	client   *gogithub.Client
	download *http.Client
}

// NewReleaseClient creates a client. An empty token only reaches public
// repositories.
func NewReleaseClient(token string) *ReleaseClient {
	httpClient := http.DefaultClient
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	return &ReleaseClient{
		client: gogithub.NewClient(httpClient),
		// Asset downloads redirect to a signed storage URL that must not
		// receive the GitHub token.
		download: http.DefaultClient,
	}
}

// Resolve finds the asset named by ref.
func (c *ReleaseClient) Resolve(ctx context.Context, ref AssetRef) (*ReleaseSource, error) {
	release, _, err := c.client.Repositories.GetReleaseByTag(ctx, ref.Owner, ref.Repo, ref.Tag)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", ref, ErrAssetNotFound)
		}
		return nil, fmt.Errorf("get release %s: %w", ref.Tag, err)
	}

	for _, asset := range release.Assets {
		if asset.GetName() != ref.Asset {
			continue
		}
		if ct := ContentTypeFromName(asset.GetName()); ct != "application/zip" {
			return nil, fmt.Errorf("%s: asset must be a zip archive, got %s", ref, ct)
		}
		return &ReleaseSource{
			client:  c,
			ref:     ref,
			assetID: asset.GetID(),
			size:    int64(asset.GetSize()),
		}, nil
	}
	return nil, fmt.Errorf("%s: %w", ref, ErrAssetNotFound)
}

// ReleaseSource streams one release asset. Each Open starts a new download.
type ReleaseSource struct {
	client  *ReleaseClient
	ref     AssetRef
	assetID int64
	size    int64
}

func (s *ReleaseSource) Name() string { return s.ref.String() }

func (s *ReleaseSource) Size() int64 { return s.size }

func (s *ReleaseSource) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, _, err := s.client.client.Repositories.DownloadReleaseAsset(ctx, s.ref.Owner, s.ref.Repo, s.assetID, s.client.download)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", s.ref, err)
	}
	if rc == nil {
		return nil, fmt.Errorf("download %s: empty response", s.ref)
	}
	return rc, nil
}

func isNotFound(err error) bool {
	var ghErr *gogithub.ErrorResponse
	if !errors.As(err, &ghErr) {
		return false
	}
	return ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}

// ContentTypeFromName infers content-type from filename when possible.
func ContentTypeFromName(name string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(name), ".zip"):
		return "application/zip"
	case strings.HasSuffix(name, ".tar"):
		return "application/x-tar"
	default:
		return "application/octet-stream"
	}
}
