package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Fi44er/sol_gift/utils"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func vaultKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeEnv(t, `DB_DRIVER=sqlite
DB_URL=file::memory:
VAULT_PRIVATE_KEY=`+utils.EncodePrivateKey(vaultKey(t))+`
JWT_SECRET=jwt
CONFIRM_TIMEOUT=15s
SEND_ATTEMPTS=5
PRIORITY_FEE_MICROLAMPORTS=1000
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "file::memory:", cfg.DB_URL)
	assert.Equal(t, 15*time.Second, cfg.ConfirmTimeout)
	assert.Equal(t, 5, cfg.SendAttempts)
	assert.Equal(t, uint64(1000), cfg.PriorityFeeMicroLamports)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "devnet", cfg.DefaultNetwork)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "https://api.devnet.solana.com", cfg.RPCEndpoints()["devnet"])
}

func TestLoadConfigEnvironmentOnly(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/gift")
	t.Setenv("VAULT_PRIVATE_KEY", utils.EncodePrivateKey(vaultKey(t)))
	t.Setenv("JWT_SECRET", "jwt")
	t.Setenv("ADMIN_CHAT_ID", "42")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, int64(42), cfg.AdminChatID)
}

func TestValidate(t *testing.T) {
	vault := vaultKey(t)
	base := Config{
		DBDriver:         "postgres",
		DB_URL:           "dsn",
		VaultPrivateKey:  utils.EncodePrivateKey(vault),
		VaultAddress:     vault.PublicKey().String(),
		JWTSecret:        "s",
		VerifyCommitment: "confirmed",
		SettleCommitment: "processed",
		ConfirmTimeout:   time.Second,
		SendAttempts:     1,
	}
	require.NoError(t, base.Validate())

	weaker := base
	weaker.VerifyCommitment = "confirmed"
	weaker.SettleCommitment = "finalized"
	assert.ErrorContains(t, weaker.Validate(), "at least as strong")

	processed := base
	processed.VerifyCommitment = "processed"
	assert.ErrorContains(t, processed.Validate(), "VERIFY_COMMITMENT")

	missing := base
	missing.DB_URL = ""
	missing.DBDriver = "mysql"
	err := missing.Validate()
	assert.ErrorContains(t, err, "DB_URL is required")
	assert.ErrorContains(t, err, "mysql")

	badKey := base
	badKey.VaultPrivateKey = "not-a-key"
	assert.ErrorContains(t, badKey.Validate(), "VAULT_PRIVATE_KEY is not a valid key")

	otherVault := base
	otherVault.VaultAddress = vaultKey(t).PublicKey().String()
	assert.ErrorContains(t, otherVault.Validate(), "does not match the vault key")
}
