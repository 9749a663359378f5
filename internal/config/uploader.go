package config

import (
	"errors"
	"flag"
	"fmt"

	"github.com/kuncarous/nextmu-remix/internal/domain"
)

// UploaderConfig holds configuration for the uploader CLI.
type UploaderConfig struct {
	GatewayURL  string
	Session     string
	Mode        domain.Mode
	VersionID   string
	File        string
	GitHubAsset string
	GitHubToken string
	SpoolDir    string
	DirectAddr  string
	AccessToken string
	DirectTLS   bool
	ChunkSize   int64
	Parallel    int
	Retries     int
	LogLevel    string
}

// LoadUploader parses uploader configuration from flags and environment
// variables. Flags take precedence over environment variables.
func LoadUploader(args []string) (*UploaderConfig, error) {
	return loadUploaderWithFlagSet(flag.NewFlagSet("uploader", flag.ContinueOnError), args)
}

func loadUploaderWithFlagSet(fs *flag.FlagSet, args []string) (*UploaderConfig, error) {
	cfg := &UploaderConfig{
		GatewayURL:  getEnv("PORTAL_URL", ""),
		Session:     getEnv("PORTAL_SESSION", ""),
		GitHubToken: getEnv("GITHUB_TOKEN", ""),
		SpoolDir:    getEnv("UPLOADER_SPOOL_DIR", ""),
		DirectAddr:  getEnv("UPDATESERVICE_ADDRESS", ""),
		AccessToken: getEnv("UPDATESERVICE_ACCESS_TOKEN", ""),
		DirectTLS:   parseBool("UPDATESERVICE_TLS", false),
		ChunkSize:   parseInt64("UPLOAD_CHUNK_SIZE", domain.ChunkSize),
		Parallel:    domain.MaxParallelChunks,
		LogLevel:    getEnv("LOG_LEVEL", defaultLogLevel),
	}

	var mode string
	fs.StringVar(&cfg.GatewayURL, "gateway", cfg.GatewayURL, "portal gateway base URL")
	fs.StringVar(&cfg.Session, "session", cfg.Session, "portal session id")
	fs.StringVar(&mode, "mode", string(domain.ModeGame), "update service (game, launcher)")
	fs.StringVar(&cfg.VersionID, "version", "", "target version id")
	fs.StringVar(&cfg.File, "file", "", "path of the zip archive to upload")
	fs.StringVar(&cfg.GitHubAsset, "github", "", "release asset to upload (owner/repo@tag:asset)")
	fs.StringVar(&cfg.GitHubToken, "github-token", cfg.GitHubToken, "GitHub token for private releases")
	fs.StringVar(&cfg.SpoolDir, "spool-dir", cfg.SpoolDir, "directory for local copies of -github assets")
	fs.StringVar(&cfg.DirectAddr, "direct", cfg.DirectAddr, "update service gRPC address, bypassing the gateway")
	fs.StringVar(&cfg.AccessToken, "access-token", cfg.AccessToken, "access token for -direct")
	fs.BoolVar(&cfg.DirectTLS, "tls", cfg.DirectTLS, "use TLS for -direct")
	fs.Int64Var(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "chunk size in bytes")
	fs.IntVar(&cfg.Parallel, "parallel", cfg.Parallel, "concurrent chunk uploads (1..5)")
	fs.IntVar(&cfg.Retries, "retries", 0, "resume attempts after transient failures")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	m, err := domain.ParseMode(mode)
	if err != nil {
		return nil, err
	}
	cfg.Mode = m

	if !domain.IsObjectID(cfg.VersionID) {
		return nil, errors.New("-version must be a 24 character hex id")
	}
	if (cfg.File == "") == (cfg.GitHubAsset == "") {
		return nil, errors.New("exactly one of -file or -github is required")
	}
	if cfg.DirectAddr == "" {
		if cfg.GatewayURL == "" {
			return nil, errors.New("-gateway (PORTAL_URL) or -direct (UPDATESERVICE_ADDRESS) is required")
		}
		if cfg.Session == "" {
			return nil, errors.New("-session (PORTAL_SESSION) is required with -gateway")
		}
	} else if cfg.AccessToken == "" {
		return nil, errors.New("-access-token (UPDATESERVICE_ACCESS_TOKEN) is required with -direct")
	}
	if !domain.ValidChunkSize(cfg.ChunkSize) {
		return nil, fmt.Errorf("-chunk-size must be a multiple of 2 between %d and %d", domain.MinChunkSize, domain.MaxChunkSize)
	}
	if cfg.Parallel < 1 {
		cfg.Parallel = 1
	}
	if cfg.Parallel > domain.MaxParallelChunks {
		cfg.Parallel = domain.MaxParallelChunks
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	return cfg, nil
}
