// Package vault encrypts per-repository access tokens at rest and hands out
// plaintext on demand, invalidating lazily on expiry or decryption failure.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Sumatoshi-tech/reviewd/internal/project"
)

// KeyEnvVar names the environment variable holding the base64 key material.
const KeyEnvVar = "REPOSITORY_TOKEN_ENCRYPTION_KEY"

// EnvModeVar names the deployment-environment variable; "production" forbids
// running with a generated throwaway key.
const EnvModeVar = "REVIEWD_ENV"

// envProduction is the EnvModeVar value that requires a configured key.
const envProduction = "production"

// keyBytes is the AES-256 key length.
const keyBytes = 32

// DefaultTokenTTLDays is the default token lifetime applied by Store.
const DefaultTokenTTLDays = 365

// hoursPerDay converts TTL days to a time.Duration.
const hoursPerDay = 24

// Sentinel errors.
var (
	// ErrEmptyToken indicates an attempt to store an empty plaintext.
	ErrEmptyToken = errors.New("token plaintext is empty")
	// ErrMissingKeyInProduction indicates no key was configured while running
	// in production mode; a generated key must never be used there.
	ErrMissingKeyInProduction = errors.New("encryption key not configured in production")
	// errCiphertextTooShort indicates stored ciphertext shorter than a nonce.
	errCiphertextTooShort = errors.New("ciphertext shorter than nonce")
)

// Vault performs authenticated symmetric encryption of project tokens with a
// process-wide key. Per-project serialization is inherited from the store's
// Update path; the vault itself is stateless beyond the AEAD.
type Vault struct {
	store *project.Store
	aead  cipher.AEAD
	log   *slog.Logger
	now   func() time.Time
}

// New constructs a Vault. Key material is read from KeyEnvVar (base64). When
// absent, a fresh key is generated and logged exactly once as a development
// convenience; in production mode construction fails instead.
func New(store *project.Store, log *slog.Logger) (*Vault, error) {
	key, err := resolveKey(log)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &Vault{
		store: store,
		aead:  aead,
		log:   log,
		now:   time.Now,
	}, nil
}

func resolveKey(log *slog.Logger) ([]byte, error) {
	encoded := os.Getenv(KeyEnvVar)
	if encoded != "" {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", KeyEnvVar, err)
		}

		if len(key) != keyBytes {
			return nil, fmt.Errorf("decode %s: key must be %d bytes, got %d", KeyEnvVar, keyBytes, len(key))
		}

		return key, nil
	}

	if os.Getenv(EnvModeVar) == envProduction {
		return nil, ErrMissingKeyInProduction
	}

	key := make([]byte, keyBytes)

	_, err := rand.Read(key)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	// Logged once so a developer can pin the key across restarts. Tokens
	// encrypted under a generated key are unreadable after restart.
	log.Warn("no token encryption key configured; generated a volatile key",
		"env_var", KeyEnvVar,
		"generated_key", base64.StdEncoding.EncodeToString(key))

	return key, nil
}

// Store encrypts plaintext and persists it on the project, setting the token
// expiry ttlDays in the future. Fails only on empty plaintext or a missing
// project; encryption errors cannot occur once the AEAD is constructed.
func (v *Vault) Store(projectID, plaintext string, ttlDays int) error {
	if plaintext == "" {
		return ErrEmptyToken
	}

	if ttlDays <= 0 {
		ttlDays = DefaultTokenTTLDays
	}

	ciphertext, err := v.encrypt(plaintext)
	if err != nil {
		return err
	}

	expiry := v.now().Add(time.Duration(ttlDays) * hoursPerDay * time.Hour)

	return v.store.Update(projectID, func(p *project.Project) {
		p.EncryptedToken = ciphertext
		p.TokenExpiresAt = expiry
	})
}

// Get returns the decrypted token, or ok=false when no token is stored, the
// token is expired, or decryption fails. Expired and undecryptable tokens are
// invalidated in place; callers fall back to unauthenticated access.
func (v *Vault) Get(projectID string) (plaintext string, ok bool) {
	snap, err := v.store.Snapshot(projectID)
	if err != nil || !snap.HasToken() {
		return "", false
	}

	if snap.TokenExpired(v.now()) {
		v.log.Info("token expired, invalidating", "project_id", projectID)
		v.invalidate(projectID)

		return "", false
	}

	plaintext, err = v.decrypt(snap.EncryptedToken)
	if err != nil {
		v.log.Warn("token decryption failed, invalidating", "project_id", projectID, "error", err)
		v.invalidate(projectID)

		return "", false
	}

	used := v.now()

	_ = v.store.Update(projectID, func(p *project.Project) {
		p.TokenLastUsedAt = used
	})

	return plaintext, true
}

// IsValid reports whether a token is present and unexpired. Pure predicate:
// it neither decrypts nor invalidates.
func (v *Vault) IsValid(projectID string) bool {
	snap, err := v.store.Snapshot(projectID)
	if err != nil {
		return false
	}

	return snap.HasToken() && !snap.TokenExpired(v.now())
}

// RefreshIfChanged replaces the stored token when the new plaintext differs
// from the current one, otherwise only bumps last-used. Returns whether a
// replacement happened.
func (v *Vault) RefreshIfChanged(projectID, newPlaintext string) (bool, error) {
	if newPlaintext == "" {
		return false, ErrEmptyToken
	}

	current, ok := v.Get(projectID)
	if ok && current == newPlaintext {
		return false, nil
	}

	err := v.Store(projectID, newPlaintext, DefaultTokenTTLDays)
	if err != nil {
		return false, err
	}

	return true, nil
}

// SweepExpired invalidates tokens past their expiry across all projects and
// returns how many were cleared. Idempotent: a second back-to-back sweep
// clears nothing.
func (v *Vault) SweepExpired() int {
	now := v.now()
	swept := 0

	for _, snap := range v.store.All() {
		if !snap.TokenExpired(now) {
			continue
		}

		v.invalidate(snap.ID)
		swept++
	}

	if swept > 0 {
		v.log.Info("swept expired tokens", "count", swept)
	}

	return swept
}

func (v *Vault) invalidate(projectID string) {
	_ = v.store.Update(projectID, func(p *project.Project) {
		p.ClearToken()
	})
}

func (v *Vault) encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())

	_, err := rand.Read(nonce)
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (v *Vault) decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	if len(sealed) < v.aead.NonceSize() {
		return "", errCiphertextTooShort
	}

	nonce, ciphertext := sealed[:v.aead.NonceSize()], sealed[v.aead.NonceSize():]

	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open ciphertext: %w", err)
	}

	return string(plaintext), nil
}
