package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/Fi44er/sol_gift/utils"
	"github.com/gagliardetto/solana-go"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

const loginMessagePrefix = "Sign this message for authenticating with your wallet. Nonce: "

// SessionIdentity is the authenticated caller every owner-scoped operation takes.
type SessionIdentity struct {
	Address string
}

type SessionClaims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

type Challenge struct {
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

func LoginMessage(nonce string) string {
	return loginMessagePrefix + nonce
}

// Nonce issues a single-use challenge for a wallet to sign.
func (s *Service) Nonce(ctx context.Context) (*Challenge, error) {
	n := &models.AuthNonce{
		Nonce:     uuid.NewString(),
		ExpiresAt: s.now().Add(s.opts.NonceTTL),
	}
	if err := s.repo.CreateNonce(ctx, n); err != nil {
		return nil, err
	}
	return &Challenge{Nonce: n.Nonce, Message: LoginMessage(n.Nonce), ExpiresAt: n.ExpiresAt}, nil
}

// Login checks the wallet's signature over the challenge and returns a session token.
// The nonce is spent before the signature is checked, so a failed attempt cannot be retried with it.
func (s *Service) Login(ctx context.Context, address, signature, nonce string) (string, error) {
	if address == "" || signature == "" || nonce == "" {
		return "", invalidf("address, signature and nonce are required")
	}
	pub, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return "", invalidf("address %q is not a wallet address", address)
	}

	ok, err := s.repo.ConsumeNonce(ctx, nonce, s.now())
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrInvalidNonce
	}

	raw, err := base58.Decode(signature)
	if err != nil || len(raw) != 64 {
		return "", ErrInvalidSignature
	}
	if !pub.Verify([]byte(LoginMessage(nonce)), solana.SignatureFromBytes(raw)) {
		s.logger.Warnf("🔐 bad login signature for %s", utils.MaskShort(address))
		return "", ErrInvalidSignature
	}

	if _, err := s.repo.EnsureUser(ctx, address); err != nil {
		return "", err
	}

	token, err := s.IssueSession(address)
	if err != nil {
		return "", err
	}
	s.logger.Infof("🔐 %s logged in", utils.MaskShort(address))
	return token, nil
}

func (s *Service) IssueSession(address string) (string, error) {
	now := s.now()
	claims := SessionClaims{
		Address: address,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.SessionTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.JWTSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return token, nil
}

// ParseSession validates a session token and returns the identity it carries.
func (s *Service) ParseSession(token string) (SessionIdentity, error) {
	var claims SessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.opts.JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return SessionIdentity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Address == "" {
		return SessionIdentity{}, fmt.Errorf("%w: session carries no address", ErrUnauthenticated)
	}
	return SessionIdentity{Address: claims.Address}, nil
}
