package config

// Package config loads engine configuration from the environment, with
// optional .env support for local development. Values are read at process
// start and passed explicitly; nothing here is cached across transactions.

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// SystemAccounts holds the account codes the posting engine resolves at
// operation boundaries.
type SystemAccounts struct {
	DefaultCash string
	DefaultAR   string
	DefaultAP   string
	FXGain      string
	FXLoss      string
	GSTOutput   string
	GSTInput    string
	WHTPayable  string
	// CashOnHand is the GL account counted into dashboard total cash when
	// it does not back a bank account.
	CashOnHand string
}

// Config is the full runtime configuration of the service.
type Config struct {
	Addr         string
	DatabaseURL  string
	LogLevel     string
	LogFormat    string
	BaseCurrency string
	DevSeed      bool
	SysAcc       SystemAccounts
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in when present, without overriding real env vars.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Addr:         getenv("ADDR", ":8080"),
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		LogLevel:     os.Getenv("LOG_LEVEL"),
		LogFormat:    os.Getenv("LOG_FORMAT"),
		BaseCurrency: strings.ToUpper(getenv("BASE_CURRENCY", "SGD")),
		DevSeed:      isTrue(os.Getenv("DEV_SEED")),
		SysAcc: SystemAccounts{
			DefaultCash: getenv("SYSACC_DEFAULT_CASH", "1010"),
			DefaultAR:   getenv("SYSACC_DEFAULT_AR", "1200"),
			DefaultAP:   getenv("SYSACC_DEFAULT_AP", "2100"),
			FXGain:      getenv("SYSACC_FX_GAIN", "7150"),
			FXLoss:      getenv("SYSACC_FX_LOSS", "8150"),
			GSTOutput:   getenv("SYSACC_GST_OUTPUT", "2200"),
			GSTInput:    getenv("SYSACC_GST_INPUT", "1300"),
			WHTPayable:  getenv("SYSACC_WHT_PAYABLE", "2250"),
			CashOnHand:  getenv("SYSACC_CASH_ON_HAND", "1000"),
		},
	}
	return cfg
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func isTrue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
