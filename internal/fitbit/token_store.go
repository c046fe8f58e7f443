package fitbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

// TokenStore persists the single Fitbit token the server acts with.
// Load returns ErrNotAuthorized when nothing has been stored yet.
type TokenStore interface {
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, tok *oauth2.Token) error
}

// DefaultTokenPath is <user cache dir>/fitbit-mcp/fitbit.token.
func DefaultTokenPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locating cache directory: %w", err)
	}
	return filepath.Join(dir, "fitbit-mcp", "fitbit.token"), nil
}

// FileTokenStore keeps the token as JSON in a file readable only by the
// current user.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore stores the token at path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Path returns the token file location.
func (s *FileTokenStore) Path() string { return s.path }

func (s *FileTokenStore) Load(_ context.Context) (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotAuthorized
	}
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	return decodeToken(data)
}

func (s *FileTokenStore) Save(_ context.Context, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	// Write then rename so a crash never leaves a truncated token behind.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".fitbit-token-*")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("restricting token file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}

// RedisTokenStore keeps the token as JSON under one Redis key, for
// deployments without a persistent disk.
type RedisTokenStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisTokenStore stores the token under key.
func NewRedisTokenStore(client redis.UniversalClient, key string) *RedisTokenStore {
	return &RedisTokenStore{client: client, key: key}
}

// NewRedisTokenStoreFromURL connects to a redis:// or rediss:// URL and
// verifies the connection.
func NewRedisTokenStoreFromURL(ctx context.Context, rawURL, key string) (*RedisTokenStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisTokenStore(client, key), nil
}

func (s *RedisTokenStore) Load(ctx context.Context) (*oauth2.Token, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotAuthorized
	}
	if err != nil {
		return nil, fmt.Errorf("reading token from redis: %w", err)
	}
	return decodeToken(data)
}

func (s *RedisTokenStore) Save(ctx context.Context, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("writing token to redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisTokenStore) Close() error { return s.client.Close() }

func decodeToken(data []byte) (*oauth2.Token, error) {
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, ErrNotAuthorized
	}
	return &tok, nil
}
