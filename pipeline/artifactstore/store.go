// Package artifactstore implements C1: content-addressed retrieval of
// artifact bytes plus digest computation. No write path belongs to the
// core; bytes are sourced from a pluggable BlobFetcher collaborator.
package artifactstore

import (
	"context"
	"sync"

	"github.com/deep60/nexus-intel/domain"
	nexuserrors "github.com/deep60/nexus-intel/infrastructure/errors"
	"github.com/deep60/nexus-intel/infrastructure/resilience"
)

// BlobFetcher is the out-of-scope object-storage collaborator (§1) — the
// core never implements blob storage itself, only this narrow interface.
type BlobFetcher interface {
	FetchBytes(ctx context.Context, contentAddress string) ([]byte, error)
}

// Store exposes C1's two operations: fetch and compute_digests (§4.1).
type Store interface {
	// Fetch returns the artifact's bytes, retrying FetchFailed per the
	// configured resilience.RetryConfig before giving up with ArtifactUnavailable.
	Fetch(ctx context.Context, contentAddress string) ([]byte, error)
	// Register persists metadata for a newly observed artifact.
	Register(ctx context.Context, artifact domain.Artifact) error
	// Get returns previously registered artifact metadata.
	Get(ctx context.Context, contentAddress string) (domain.Artifact, error)
}

// PostgresStore persists artifact metadata in the `artifacts` table (§6.4)
// and delegates byte retrieval to a BlobFetcher, retrying transient fetch
// failures with bounded exponential backoff (§4.1).
type PostgresStore struct {
	db      dbExecutor
	fetcher BlobFetcher
	retry   resilience.RetryConfig
}

// dbExecutor is the minimal subset of *sql.DB this package depends on,
// narrowed so the store can be exercised against a fake in tests without a
// live database driver.
type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) error
	QueryRowContext(ctx context.Context, query string, args ...interface{}) Row
}

// Row is the minimal row-scanning surface used by PostgresStore.
type Row interface {
	Scan(dest ...interface{}) error
}

// NewPostgresStore constructs a store backed by db and fetcher, with an
// artifact-fetch retry policy (defaults to resilience.DefaultRetryConfig()).
func NewPostgresStore(db dbExecutor, fetcher BlobFetcher, retry resilience.RetryConfig) *PostgresStore {
	if retry.MaxAttempts <= 0 {
		retry = resilience.DefaultRetryConfig()
	}
	return &PostgresStore{db: db, fetcher: fetcher, retry: retry}
}

// Fetch retrieves artifact bytes via the configured BlobFetcher, retrying
// transient failures. After the retry budget is exhausted it returns
// errors.ArtifactUnavailable.
func (s *PostgresStore) Fetch(ctx context.Context, contentAddress string) ([]byte, error) {
	var data []byte
	err := resilience.Retry(ctx, s.retry, func() error {
		bytes, fetchErr := s.fetcher.FetchBytes(ctx, contentAddress)
		if fetchErr != nil {
			return fetchErr
		}
		data = bytes
		return nil
	})
	if err != nil {
		return nil, nexuserrors.ArtifactUnavailable(contentAddress, err)
	}
	return data, nil
}

// Register persists artifact metadata.
func (s *PostgresStore) Register(ctx context.Context, artifact domain.Artifact) error {
	return s.db.ExecContext(ctx,
		`INSERT INTO artifacts (content_address, kind, size, declared_filename, declared_mime, sha256, md5, sha1, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (content_address) DO NOTHING`,
		artifact.ContentAddress, artifact.Kind, artifact.Size, artifact.DeclaredFilename,
		artifact.DeclaredMIME, artifact.Digests.SHA256, artifact.Digests.MD5, artifact.Digests.SHA1,
		artifact.CreatedAt,
	)
}

// Get returns previously registered artifact metadata.
func (s *PostgresStore) Get(ctx context.Context, contentAddress string) (domain.Artifact, error) {
	var a domain.Artifact
	row := s.db.QueryRowContext(ctx,
		`SELECT content_address, kind, size, declared_filename, declared_mime, sha256, md5, sha1, created_at
		 FROM artifacts WHERE content_address = $1`, contentAddress)
	err := row.Scan(&a.ContentAddress, &a.Kind, &a.Size, &a.DeclaredFilename, &a.DeclaredMIME,
		&a.Digests.SHA256, &a.Digests.MD5, &a.Digests.SHA1, &a.CreatedAt)
	if err != nil {
		return domain.Artifact{}, nexuserrors.NotFound("artifact", contentAddress)
	}
	return a, nil
}

// InMemoryStore is a test double matching the teacher's mockStore pattern.
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]domain.Artifact
	blobs     map[string][]byte
}

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		artifacts: make(map[string]domain.Artifact),
		blobs:     make(map[string][]byte),
	}
}

// Seed preloads bytes for a content address, bypassing any fetcher.
func (s *InMemoryStore) Seed(contentAddress string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[contentAddress] = data
}

// Fetch returns previously seeded bytes or ArtifactUnavailable.
func (s *InMemoryStore) Fetch(ctx context.Context, contentAddress string) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.blobs[contentAddress]
	s.mu.RUnlock()
	if !ok {
		return nil, nexuserrors.ArtifactUnavailable(contentAddress, nexuserrors.NotFound("blob", contentAddress))
	}
	return data, nil
}

// Register stores artifact metadata in-process.
func (s *InMemoryStore) Register(ctx context.Context, artifact domain.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[artifact.ContentAddress] = artifact
	return nil
}

// Get returns in-process artifact metadata.
func (s *InMemoryStore) Get(ctx context.Context, contentAddress string) (domain.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[contentAddress]
	if !ok {
		return domain.Artifact{}, nexuserrors.NotFound("artifact", contentAddress)
	}
	return a, nil
}

var _ Store = (*PostgresStore)(nil)
var _ Store = (*InMemoryStore)(nil)
