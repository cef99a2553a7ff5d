package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signChallenge(t *testing.T, key solana.PrivateKey, message string) string {
	t.Helper()
	sig, err := key.Sign([]byte(message))
	require.NoError(t, err)
	return sig.String()
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wallet := f.creator

	challenge, err := f.svc.Nonce(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(challenge.Message, challenge.Nonce))
	assert.Equal(t, "Sign this message for authenticating with your wallet. Nonce: "+challenge.Nonce, challenge.Message)

	address := wallet.PublicKey().String()
	token, err := f.svc.Login(ctx, address, signChallenge(t, wallet, challenge.Message), challenge.Nonce)
	require.NoError(t, err)

	identity, err := f.svc.ParseSession(token)
	require.NoError(t, err)
	assert.Equal(t, SessionIdentity{Address: address}, identity)

	user, err := f.repo.GetUser(ctx, address)
	require.NoError(t, err)
	require.NotNil(t, user)

	// a nonce is good for one login only
	_, err = f.svc.Login(ctx, address, signChallenge(t, wallet, challenge.Message), challenge.Nonce)
	assert.ErrorIs(t, err, ErrInvalidNonce)
}

func TestLoginRejectsForeignSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	challenge, err := f.svc.Nonce(ctx)
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, f.identity().Address, signChallenge(t, other, challenge.Message), challenge.Nonce)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	challenge, err = f.svc.Nonce(ctx)
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, f.identity().Address, "not base58 !", challenge.Nonce)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	user, err := f.repo.GetUser(ctx, f.identity().Address)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestLoginWithExpiredNonce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	challenge, err := f.svc.Nonce(ctx)
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Now().UTC().Add(6 * time.Minute) }
	_, err = f.svc.Login(ctx, f.identity().Address, signChallenge(t, f.creator, challenge.Message), challenge.Nonce)
	assert.ErrorIs(t, err, ErrInvalidNonce)

	report := f.svc.Reconcile(ctx)
	assert.Equal(t, int64(1), report.Nonces)
}

func TestParseSessionRejectsForgedTokens(t *testing.T) {
	f := newFixture(t)
	address := f.identity().Address

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{Address: address}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = f.svc.ParseSession(forged)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, SessionClaims{Address: address}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = f.svc.ParseSession(unsigned)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	expired := SessionClaims{
		Address: address,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	stale, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expired).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = f.svc.ParseSession(stale)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.svc.ParseSession("garbage")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
