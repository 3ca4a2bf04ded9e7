// Package config loads and validates the process-wide configuration from
// the environment. It is read exactly once at startup (cmd/bot/main.go);
// nothing downstream re-reads os.Getenv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the typed, validated configuration for the whole process.
type Config struct {
	RPCURL           string
	HeliusAPIKey     string
	TokenMint        string
	TreasuryKeyPath  string
	KeystorePassword string
	DryRun           bool

	DataDir   string
	PublicDir string

	BuyIntervalSeconds    int
	RewardIntervalSeconds int

	MinWalletAgeDays    int
	MinContinuitySecs   int64
	MinCumulativeBuySOL float64
	WinnersPerRound     int

	NativeFeeReserveSOL   float64
	MinBuySOL             float64
	MaxBuyPerIntervalSOL  float64
	SlippageBps           int
	RewardPercentBps      int
	MaxRewardPercentBps   int
	MaxSendsPerTx         int
	BootstrapSignLimit    int
	PerTickScanLimit      int
	MinTreasuryNativeSOL  float64
	MinTreasuryTokenRaw   uint64
	MaxRPCErrorsBeforePause int

	StatusPort        int
	AllowedCORSOrigin string

	BuyJobTimeout    time.Duration
	RewardJobTimeout time.Duration

	RabbitMQURL string
}

// Load reads the configuration from the environment and validates it.
// Unknown environment keys are ignored.
func Load() (*Config, error) {
	cfg := &Config{
		RPCURL:           getenv("RPC_URL", ""),
		HeliusAPIKey:     getenv("HELIUS_API_KEY", ""),
		TokenMint:        getenv("TOKEN_MINT", ""),
		TreasuryKeyPath:  getenv("TREASURY_KEY_PATH", ""),
		KeystorePassword: getenv("TREASURY_KEY_PASSWORD", ""),
		DryRun:           getenvBool("DRY_RUN", true),

		DataDir:   getenv("DATA_DIR", "./data"),
		PublicDir: getenv("PUBLIC_DIR", "./public"),

		BuyIntervalSeconds:    getenvInt("BUY_INTERVAL_SECONDS", 3600),
		RewardIntervalSeconds: getenvInt("REWARD_INTERVAL_SECONDS", 7200),

		MinWalletAgeDays:    getenvInt("MIN_WALLET_AGE_DAYS", 1),
		MinContinuitySecs:   int64(getenvInt("MIN_CONTINUITY_SECONDS", 3600)),
		MinCumulativeBuySOL: getenvFloat("MIN_CUMULATIVE_BUY_SOL", 0.05),
		WinnersPerRound:     getenvInt("WINNERS_PER_ROUND", 5),

		NativeFeeReserveSOL:     getenvFloat("NATIVE_FEE_RESERVE_SOL", 0.03),
		MinBuySOL:               getenvFloat("MIN_BUY_SOL", 0.01),
		MaxBuyPerIntervalSOL:    getenvFloat("MAX_BUY_PER_INTERVAL_SOL", 0.2),
		SlippageBps:             getenvInt("SLIPPAGE_BPS", 100),
		RewardPercentBps:        getenvInt("REWARD_PERCENT_BPS", 500),
		MaxRewardPercentBps:     getenvInt("MAX_REWARD_PERCENT_BPS", 1000),
		MaxSendsPerTx:           getenvInt("MAX_SENDS_PER_TX", 10),
		BootstrapSignLimit:      getenvInt("BOOTSTRAP_SIGNATURE_LIMIT", 10000),
		PerTickScanLimit:        getenvInt("PER_TICK_SCAN_LIMIT", 100),
		MinTreasuryNativeSOL:    getenvFloat("MIN_TREASURY_NATIVE_SOL", 0.05),
		MinTreasuryTokenRaw:     uint64(getenvInt("MIN_TREASURY_TOKEN_RAW", 0)),
		MaxRPCErrorsBeforePause: getenvInt("MAX_RPC_ERRORS_BEFORE_PAUSE", 3),

		StatusPort:        getenvInt("STATUS_PORT", 8080),
		AllowedCORSOrigin: getenv("ALLOWED_CORS_ORIGIN", "*"),

		BuyJobTimeout:    time.Duration(getenvInt("BUY_JOB_TIMEOUT_MS", 30000)) * time.Millisecond,
		RewardJobTimeout: time.Duration(getenvInt("REWARD_JOB_TIMEOUT_MS", 120000)) * time.Millisecond,

		RabbitMQURL: getenv("RABBITMQ_URL", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.TokenMint == "" {
		return fmt.Errorf("config: TOKEN_MINT is required")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("config: RPC_URL is required")
	}
	if c.HeliusAPIKey == "" {
		return fmt.Errorf("config: HELIUS_API_KEY is required")
	}
	if !c.DryRun && c.TreasuryKeyPath == "" {
		return fmt.Errorf("config: TREASURY_KEY_PATH is required outside dry-run")
	}
	if c.BuyIntervalSeconds <= 0 {
		return fmt.Errorf("config: BUY_INTERVAL_SECONDS must be positive")
	}
	if c.RewardIntervalSeconds <= 0 {
		return fmt.Errorf("config: REWARD_INTERVAL_SECONDS must be positive")
	}
	if c.WinnersPerRound <= 0 {
		return fmt.Errorf("config: WINNERS_PER_ROUND must be positive")
	}
	if c.RewardPercentBps < 0 || c.RewardPercentBps > 10000 {
		return fmt.Errorf("config: REWARD_PERCENT_BPS must be in [0, 10000]")
	}
	if c.MaxRewardPercentBps < 0 || c.MaxRewardPercentBps > 10000 {
		return fmt.Errorf("config: MAX_REWARD_PERCENT_BPS must be in [0, 10000]")
	}
	if c.MaxSendsPerTx <= 0 {
		return fmt.Errorf("config: MAX_SENDS_PER_TX must be positive")
	}
	if c.MaxRPCErrorsBeforePause <= 0 {
		return fmt.Errorf("config: MAX_RPC_ERRORS_BEFORE_PAUSE must be positive")
	}
	if c.StatusPort <= 0 || c.StatusPort > 65535 {
		return fmt.Errorf("config: STATUS_PORT must be a valid port")
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
