package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName          = "FlashSettlement"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultAccessTokenTTL   = 15 * time.Minute
	defaultRefreshTokenTTL  = 7 * 24 * time.Hour
	defaultProgramID        = "flash-settlement"
	defaultReserveLabel     = "flash_loan"
	defaultProfitDivisor    = 100
	defaultSettlementRate   = 5.0
	defaultSettlementBurst  = 10
	defaultReconcileSpec    = "@every 1m"
	idemTTLSecondsEnvVar    = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar        = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar   = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar  = "SHUTDOWN_TIMEOUT"
	accessTokenTTLEnvVar    = "ACCESS_TOKEN_TTL"
	refreshTokenTTLEnvVar   = "REFRESH_TOKEN_TTL"
	profitDivisorEnvVar     = "PROFIT_DIVISOR"
	settlementRateEnvVar    = "SETTLEMENT_RATE_PER_SECOND"
	settlementBurstEnvVar   = "SETTLEMENT_BURST"
	developmentSecretMarker = "development-only-secret"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName         string
	AppEnv          string
	Port            string
	LogLevel        string
	DatabaseURL     string
	RedisURL        string
	ShutdownPeriod  time.Duration
	IdempotencyTTL  time.Duration
	JWTSecret       string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// ProgramID seeds every derived authority; changing it orphans existing reserves.
	ProgramID       string
	ReserveLabel    string
	ProfitDivisor   uint64
	SettlementRate  float64
	SettlementBurst int
	ReconcileSpec   string
	ReservesFile    string
	Reserves        []Reserve
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:         getEnv("APP_NAME", defaultAppName),
		AppEnv:          getEnv("APP_ENV", defaultAppEnv),
		Port:            getEnv("PORT", defaultPort),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		ShutdownPeriod:  defaultShutdownDelay,
		IdempotencyTTL:  defaultIdempotencyTTL,
		JWTSecret:       os.Getenv("JWT_SECRET"),
		RefreshSecret:   os.Getenv("REFRESH_SECRET"),
		AccessTokenTTL:  defaultAccessTokenTTL,
		RefreshTokenTTL: defaultRefreshTokenTTL,
		ProgramID:       getEnv("PROGRAM_ID", defaultProgramID),
		ReserveLabel:    getEnv("RESERVE_LABEL", defaultReserveLabel),
		ProfitDivisor:   defaultProfitDivisor,
		SettlementRate:  defaultSettlementRate,
		SettlementBurst: defaultSettlementBurst,
		ReconcileSpec:   getEnv("RECONCILE_SCHEDULE", defaultReconcileSpec),
		ReservesFile:    os.Getenv("RESERVES_FILE"),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationFromEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationFromEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = durationFromEnv("", accessTokenTTLEnvVar, cfg.AccessTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTokenTTL, err = durationFromEnv("", refreshTokenTTLEnvVar, cfg.RefreshTokenTTL); err != nil {
		return Config{}, err
	}

	if v := os.Getenv(profitDivisorEnvVar); v != "" {
		divisor, err := strconv.ParseUint(v, 10, 64)
		if err != nil || divisor == 0 {
			return Config{}, fmt.Errorf("invalid %s: must be a positive integer", profitDivisorEnvVar)
		}
		cfg.ProfitDivisor = divisor
	}
	if v := os.Getenv(settlementRateEnvVar); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", settlementRateEnvVar, err)
		}
		cfg.SettlementRate = rate
	}
	if v := os.Getenv(settlementBurstEnvVar); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", settlementBurstEnvVar, err)
		}
		cfg.SettlementBurst = burst
	}

	if cfg.ReservesFile != "" {
		reserves, err := LoadReserves(cfg.ReservesFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Reserves = reserves
	}

	if !cfg.IsDevelopment() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
		if cfg.JWTSecret == "" || cfg.RefreshSecret == "" {
			return Config{}, fmt.Errorf("JWT_SECRET and REFRESH_SECRET must be set")
		}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = developmentSecretMarker
	}
	if cfg.RefreshSecret == "" {
		cfg.RefreshSecret = developmentSecretMarker + "-refresh"
	}

	return cfg, nil
}

// IsDevelopment reports whether the service may run without Postgres and Redis.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func durationFromEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
