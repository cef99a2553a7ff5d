package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Fi44er/sol_gift/utils"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr  string `mapstructure:"HTTP_ADDR"`
	DBDriver  string `mapstructure:"DB_DRIVER"`
	DB_URL    string `mapstructure:"DB_URL"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	VaultAddress    string `mapstructure:"VAULT_ADDRESS"`
	VaultPrivateKey string `mapstructure:"VAULT_PRIVATE_KEY"`

	DefaultNetwork     string `mapstructure:"DEFAULT_NETWORK"`
	RPCEndpointMainnet string `mapstructure:"RPC_ENDPOINT_MAINNET"`
	RPCEndpointDevnet  string `mapstructure:"RPC_ENDPOINT_DEVNET"`
	RPCEndpointTestnet string `mapstructure:"RPC_ENDPOINT_TESTNET"`

	VerifyCommitment         string        `mapstructure:"VERIFY_COMMITMENT"`
	SettleCommitment         string        `mapstructure:"SETTLE_COMMITMENT"`
	ConfirmTimeout           time.Duration `mapstructure:"CONFIRM_TIMEOUT"`
	SendAttempts             int           `mapstructure:"SEND_ATTEMPTS"`
	PriorityFeeMicroLamports uint64        `mapstructure:"PRIORITY_FEE_MICROLAMPORTS"`
	ReconcileInterval        time.Duration `mapstructure:"RECONCILE_INTERVAL"`

	JWTSecret  string        `mapstructure:"JWT_SECRET"`
	SessionTTL time.Duration `mapstructure:"SESSION_TTL"`

	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	AdminChatID      int64  `mapstructure:"ADMIN_CHAT_ID"`
}

var defaults = map[string]interface{}{
	"HTTP_ADDR":                  ":8080",
	"DB_DRIVER":                  "postgres",
	"DB_URL":                     "",
	"LOG_LEVEL":                  "debug",
	"LOG_FORMAT":                 "text",
	"VAULT_ADDRESS":              "",
	"VAULT_PRIVATE_KEY":          "",
	"DEFAULT_NETWORK":            "devnet",
	"RPC_ENDPOINT_MAINNET":       "https://api.mainnet-beta.solana.com",
	"RPC_ENDPOINT_DEVNET":        "https://api.devnet.solana.com",
	"RPC_ENDPOINT_TESTNET":       "https://api.testnet.solana.com",
	"VERIFY_COMMITMENT":          "confirmed",
	"SETTLE_COMMITMENT":          "confirmed",
	"CONFIRM_TIMEOUT":            "60s",
	"SEND_ATTEMPTS":              3,
	"PRIORITY_FEE_MICROLAMPORTS": 0,
	"RECONCILE_INTERVAL":         "30s",
	"JWT_SECRET":                 "",
	"SESSION_TTL":                "24h",
	"TELEGRAM_BOT_TOKEN":         "",
	"ADMIN_CHAT_ID":              0,
}

// commitment strength, weakest first
var commitmentRank = map[string]int{
	"processed": 0,
	"confirmed": 1,
	"finalized": 2,
}

// LoadConfig reads an env-format file when it exists and overlays the process environment.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return config, fmt.Errorf("failed to resolve config path: %w", err)
	}

	if _, statErr := os.Stat(absPath); statErr == nil {
		v.SetConfigFile(absPath)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return config, err
	}

	return config, nil
}

func (c Config) Validate() error {
	var problems []string

	if c.DB_URL == "" {
		problems = append(problems, "DB_URL is required")
	}
	if c.DBDriver != "postgres" && c.DBDriver != "sqlite" {
		problems = append(problems, fmt.Sprintf("DB_DRIVER %q is not supported", c.DBDriver))
	}
	if c.VaultPrivateKey == "" {
		problems = append(problems, "VAULT_PRIVATE_KEY is required")
	} else if vault, err := utils.ParsePrivateKey(c.VaultPrivateKey); err != nil {
		problems = append(problems, "VAULT_PRIVATE_KEY is not a valid key")
	} else if c.VaultAddress != "" && c.VaultAddress != vault.PublicKey().String() {
		problems = append(problems, fmt.Sprintf("VAULT_ADDRESS %s does not match the vault key (%s)", c.VaultAddress, vault.PublicKey()))
	}
	if c.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	}

	verify, okVerify := commitmentRank[strings.ToLower(c.VerifyCommitment)]
	settle, okSettle := commitmentRank[strings.ToLower(c.SettleCommitment)]
	switch {
	case !okVerify || verify == 0:
		problems = append(problems, "VERIFY_COMMITMENT must be confirmed or finalized")
	case !okSettle:
		problems = append(problems, fmt.Sprintf("SETTLE_COMMITMENT %q is not a commitment level", c.SettleCommitment))
	case verify < settle:
		problems = append(problems, "VERIFY_COMMITMENT must be at least as strong as SETTLE_COMMITMENT")
	}

	if c.ConfirmTimeout <= 0 {
		problems = append(problems, "CONFIRM_TIMEOUT must be positive")
	}
	if c.SendAttempts < 1 {
		problems = append(problems, "SEND_ATTEMPTS must be at least 1")
	}

	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

// RPCEndpoints maps network names to their configured RPC URL.
func (c Config) RPCEndpoints() map[string]string {
	return map[string]string{
		"mainnet-beta": c.RPCEndpointMainnet,
		"devnet":       c.RPCEndpointDevnet,
		"testnet":      c.RPCEndpointTestnet,
	}
}
