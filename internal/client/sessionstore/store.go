// Package sessionstore persists the signed-in session across process
// restarts on top of the metadata key/value repository.
//
// Layout: the serialized user object under KeyUser and the raw access token
// under KeyAccessToken. The refresh token, when the backend issued one, lives
// under KeyRefreshToken. With a secret configured, token values are sealed
// with AES-GCM and the per-device salt is kept under KeySalt.
package sessionstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/healthkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/healthkeeper/internal/cryptox"
)

const (
	KeyUser         = "session.user"
	KeyAccessToken  = "session.access_token"
	KeyRefreshToken = "session.refresh_token"
	KeySalt         = "session.salt"
)

// ErrCorrupt is returned by Load when stored entries are inconsistent or
// cannot be decoded.
var ErrCorrupt = errors.New("persisted session is corrupt")

// Snapshot is a copy of the persisted session. User holds the serialized
// user object exactly as the session manager wrote it.
type Snapshot struct {
	User         []byte
	AccessToken  string
	RefreshToken string
}

// Store persists at most one Snapshot.
type Store interface {
	// Load returns the stored snapshot. ok is false when nothing is stored.
	Load(ctx context.Context) (s Snapshot, ok bool, err error)
	Save(ctx context.Context, s Snapshot) error
	Clear(ctx context.Context) error
}

// Option configures a KVStore.
type Option func(*KVStore)

// WithSecret seals token values with a key derived from secret.
func WithSecret(secret []byte) Option {
	return func(s *KVStore) {
		if len(secret) > 0 {
			s.secret = append([]byte{}, secret...)
		}
	}
}

// KVStore implements Store over a metadata.Repository.
type KVStore struct {
	repo   metadata.Repository
	secret []byte

	mu  sync.Mutex
	key []byte
}

// NewKVStore returns a Store keeping the session under fixed keys of repo.
// Tokens are stored in clear unless WithSecret is given.
func NewKVStore(repo metadata.Repository, opts ...Option) *KVStore {
	s := &KVStore{repo: repo}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load returns the stored session. ok is false when nothing is stored; a
// partial or undecryptable layout returns ErrCorrupt.
func (s *KVStore) Load(ctx context.Context) (Snapshot, bool, error) {
	user, err := s.repo.Get(ctx, KeyUser)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load session user: %w", err)
	}
	token, err := s.repo.Get(ctx, KeyAccessToken)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load session token: %w", err)
	}
	refresh, err := s.repo.Get(ctx, KeyRefreshToken)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load session refresh token: %w", err)
	}

	if user == nil && token == nil {
		return Snapshot{}, false, nil
	}
	if len(user) == 0 || len(token) == 0 {
		return Snapshot{}, false, ErrCorrupt
	}

	access, err := s.open(ctx, token)
	if err != nil {
		return Snapshot{}, false, err
	}
	var refreshToken string
	if len(refresh) > 0 {
		if refreshToken, err = s.open(ctx, refresh); err != nil {
			return Snapshot{}, false, err
		}
	}

	return Snapshot{User: user, AccessToken: access, RefreshToken: refreshToken}, true, nil
}

// Save replaces the stored session in one batch.
func (s *KVStore) Save(ctx context.Context, snap Snapshot) error {
	if len(snap.User) == 0 || snap.AccessToken == "" {
		return errors.New("save session: user and access token are required")
	}

	err := s.repo.Batch(ctx, func(ctx context.Context, tx metadata.Repository) error {
		access, err := s.seal(ctx, tx, snap.AccessToken)
		if err != nil {
			return err
		}
		if err := tx.Set(ctx, KeyUser, snap.User); err != nil {
			return err
		}
		if err := tx.Set(ctx, KeyAccessToken, access); err != nil {
			return err
		}
		if snap.RefreshToken == "" {
			return tx.Delete(ctx, KeyRefreshToken)
		}
		refresh, err := s.seal(ctx, tx, snap.RefreshToken)
		if err != nil {
			return err
		}
		return tx.Set(ctx, KeyRefreshToken, refresh)
	})
	if err != nil {
		// a salt written inside the failed batch was rolled back with it
		s.mu.Lock()
		s.key = nil
		s.mu.Unlock()
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear removes the session entries. The sealing salt is kept.
func (s *KVStore) Clear(ctx context.Context) error {
	return s.repo.Batch(ctx, func(ctx context.Context, tx metadata.Repository) error {
		for _, k := range []string{KeyUser, KeyAccessToken, KeyRefreshToken} {
			if err := tx.Delete(ctx, k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *KVStore) seal(ctx context.Context, repo metadata.Repository, value string) ([]byte, error) {
	if s.secret == nil {
		return []byte(value), nil
	}
	key, err := s.sealingKey(ctx, repo, true)
	if err != nil {
		return nil, err
	}
	sealed, err := cryptox.Seal([]byte(value), key)
	if err != nil {
		return nil, fmt.Errorf("seal session token: %w", err)
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
	base64.StdEncoding.Encode(out, sealed)
	return out, nil
}

func (s *KVStore) open(ctx context.Context, stored []byte) (string, error) {
	if s.secret == nil {
		return string(stored), nil
	}
	key, err := s.sealingKey(ctx, s.repo, false)
	if err != nil {
		return "", err
	}
	sealed := make([]byte, base64.StdEncoding.DecodedLen(len(stored)))
	n, err := base64.StdEncoding.Decode(sealed, stored)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	plain, err := cryptox.Open(sealed[:n], key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return string(plain), nil
}

// sealingKey derives the AES key once per store. When create is set and no
// salt exists yet, a new salt is generated and written through repo.
func (s *KVStore) sealingKey(ctx context.Context, repo metadata.Repository, create bool) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil {
		return s.key, nil
	}

	salt, err := repo.Get(ctx, KeySalt)
	if err != nil {
		return nil, fmt.Errorf("load session salt: %w", err)
	}
	if len(salt) == 0 {
		if !create {
			return nil, fmt.Errorf("%w: missing salt", ErrCorrupt)
		}
		salt = cryptox.NewSalt()
		if err := repo.Set(ctx, KeySalt, salt); err != nil {
			return nil, fmt.Errorf("save session salt: %w", err)
		}
	}

	s.key = cryptox.DeriveKey(s.secret, salt)
	return s.key, nil
}
