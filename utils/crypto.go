package utils

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"SlackScheduler/internal/core"

	"golang.org/x/crypto/hkdf"
)

const sealInfo = "slack-scheduler credential tokens v1"

// Sealer encrypts tokens at rest with AES-256-GCM.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives an AES-256 key from secret. The secret must be at least 32 bytes.
func NewSealer(secret string) (*Sealer, error) {
	if len(secret) < 32 {
		return nil, errors.New("encryption key must be at least 32 characters long")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(sealInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher block: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

func (s *Sealer) Encrypt(plainText string) (string, error) {
	if plainText == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	cipherText := s.aead.Seal(nonce, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(cipherText), nil
}

func (s *Sealer) Decrypt(encrypted string) (string, error) {
	if encrypted == "" {
		return "", nil
	}
	cipherData, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	nonceSize := s.aead.NonceSize()
	if len(cipherData) < nonceSize {
		return "", errors.New("cipher text too short")
	}
	plainText, err := s.aead.Open(nil, cipherData[:nonceSize], cipherData[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plainText), nil
}

// SealedCredentials stores credential tokens encrypted and hands them back in clear.
type SealedCredentials struct {
	next   core.CredentialStore
	sealer *Sealer
}

func NewSealedCredentials(next core.CredentialStore, sealer *Sealer) *SealedCredentials {
	return &SealedCredentials{next: next, sealer: sealer}
}

func (s *SealedCredentials) UpsertCredential(ctx context.Context, c core.Credential) error {
	var err error
	if c.AccessToken, err = s.sealer.Encrypt(c.AccessToken); err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	if c.RefreshToken, err = s.sealer.Encrypt(c.RefreshToken); err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	return s.next.UpsertCredential(ctx, c)
}

func (s *SealedCredentials) GetCredential(ctx context.Context, owner core.Owner) (core.Credential, bool, error) {
	c, ok, err := s.next.GetCredential(ctx, owner)
	if err != nil || !ok {
		return c, ok, err
	}
	if c.AccessToken, err = s.sealer.Decrypt(c.AccessToken); err != nil {
		return core.Credential{}, false, fmt.Errorf("open access token for team %s, user %s: %w", owner.TeamID, owner.UserID, err)
	}
	if c.RefreshToken, err = s.sealer.Decrypt(c.RefreshToken); err != nil {
		return core.Credential{}, false, fmt.Errorf("open refresh token for team %s, user %s: %w", owner.TeamID, owner.UserID, err)
	}
	return c, true, nil
}

// Hash returns the hex sha256 of text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", sum[:])
}
