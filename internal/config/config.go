package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "LSP"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type LNDConfig struct {
	Address         string `envconfig:"ADDRESS"`
	CertPath        string `envconfig:"CERT_PATH"`
	MacaroonPath    string `envconfig:"MACAROON_PATH"`
	TLSHostOverride string `envconfig:"TLS_HOST_OVERRIDE"`
}

type Config struct {
	Env            string        `envconfig:"ENV"`
	Host           string        `envconfig:"HOST"`
	Port           int           `envconfig:"PORT"`
	LogLevel       string        `envconfig:"LOG_LEVEL"`
	LogJSON        bool          `envconfig:"LOG_JSON"`
	LogDir         string        `envconfig:"LOG_DIR"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT"`
	Store          string        `envconfig:"STORE"`
	PostgresDSN    string        `envconfig:"POSTGRES_DSN"`
	SQLitePath     string        `envconfig:"SQLITE_PATH"`
	OptionsFile    string        `envconfig:"OPTIONS_FILE"`
	LND            LNDConfig     `envconfig:"LND"`
}

func Default() Config {
	return Config{
		Env:            "dev",
		Host:           "localhost",
		Port:           3000,
		LogLevel:       "4",
		LogJSON:        false,
		LogDir:         "",
		RequestTimeout: 30 * time.Second,
		Store:          StoreMemory,
		SQLitePath:     "lsp.db",
		LND: LNDConfig{
			Address: "localhost:10009",
		},
	}
}

// EnvDefaults returns Default() overridden by any LSP_* environment
// variables that are set.
func EnvDefaults() (Config, error) {
	c := Default()
	if err := envconfig.Process(envPrefix, &c); err != nil {
		return Config{}, err
	}
	return c, nil
}
