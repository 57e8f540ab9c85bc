package config

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type AppCfg struct{ Env, Port, BaseURL string }
type DBCfg struct{ DSN string }
type RedisCfg struct{ Addr string }

type SecurityCfg struct {
	AESKey     []byte
	AdminToken string // guards the tenant/provider configuration APIs
}

type ProviderCfg struct {
	CallTimeout time.Duration // bound on every outbound provider call
}

type ReconcileCfg struct {
	PollEvery  time.Duration
	StaleAfter time.Duration // how long a pending intent waits before we poll the provider
	Batch      int
}

type Cfg struct {
	App       AppCfg
	DB        DBCfg
	Redis     RedisCfg
	Sec       SecurityCfg
	Provider  ProviderCfg
	Reconcile ReconcileCfg
}

func Load() Cfg {
	// 1) Load .env into process env (if file exists)
	_ = godotenv.Load()

	// 2) Read from env via viper
	viper.AutomaticEnv()
	viper.SetDefault("APP_ENV", "test")
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ADMIN_TOKEN", "")
	viper.SetDefault("PROVIDER_CALL_TIMEOUT_SEC", 30)
	viper.SetDefault("RECONCILE_POLL_SEC", 30)
	viper.SetDefault("RECONCILE_STALE_AFTER_SEC", 120)
	viper.SetDefault("RECONCILE_BATCH", 50)

	// Decode AES key
	keyB64 := viper.GetString("AES_256_KEY_BASE64")
	key, err := base64.StdEncoding.DecodeString(keyB64)

	cfg := Cfg{
		App: AppCfg{
			Env:     viper.GetString("APP_ENV"),
			Port:    viper.GetString("APP_PORT"),
			BaseURL: viper.GetString("APP_BASE_URL"),
		},
		DB:    DBCfg{DSN: viper.GetString("DB_DSN")},
		Redis: RedisCfg{Addr: viper.GetString("REDIS_ADDR")},
		Sec: SecurityCfg{
			AESKey:     key,
			AdminToken: strings.TrimSpace(viper.GetString("ADMIN_TOKEN")),
		},
		Provider: ProviderCfg{
			CallTimeout: time.Duration(viper.GetInt("PROVIDER_CALL_TIMEOUT_SEC")) * time.Second,
		},
		Reconcile: ReconcileCfg{
			PollEvery:  time.Duration(viper.GetInt("RECONCILE_POLL_SEC")) * time.Second,
			StaleAfter: time.Duration(viper.GetInt("RECONCILE_STALE_AFTER_SEC")) * time.Second,
			Batch:      viper.GetInt("RECONCILE_BATCH"),
		},
	}

	// 3) Fail fast on required settings
	if cfg.DB.DSN == "" {
		log.Fatal().Msg("DB_DSN is required")
	}
	if err != nil || len(cfg.Sec.AESKey) != 32 {
		log.Fatal().Msg("AES_256_KEY_BASE64 must be a valid 32-byte base64 key")
	}

	return cfg
}
