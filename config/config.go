// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"access-key-service/internal/crypto"
)

// DatabaseDriver はサポートするデータベースドライバ。
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port               string
	DatabaseDriver     string
	DatabaseURL        string
	GoogleCloudProject string
	LogLevel           string
	MigrationsDir      string

	OtelEnabled      bool
	OtelEndpoint     string
	OtelServiceName  string
	OtelSamplingRate float64

	MetricsEnabled bool

	Crypto CryptoConfig
}

// CryptoConfig は暗号バックエンドの選択と鍵素材の参照先を表す。
type CryptoConfig struct {
	// Backend は新規暗号化に使うバックエンドのタグ。
	Backend string
	// DecryptBackends は過去の暗号文を復号するためだけに構成するバックエンド。
	DecryptBackends []string
	// Envelope が true の場合、Backend をKEKとするエンベロープ暗号化を行う。
	Envelope bool

	MasterKey string

	KMSKeyName string

	AWSKMSKeyID string
	AWSRegion   string

	VaultAddress      string
	VaultToken        string
	VaultTransitMount string
	VaultTransitKey   string
}

// Load は環境変数から設定を読み込む。
// カレントディレクトリに .env があれば先に読み込む（既存の環境変数は上書きしない）。
func Load() (*Config, error) {
	_ = godotenv.Load()

	otelEnabled, err := getBool("OTEL_ENABLED", false)
	if err != nil {
		return nil, err
	}
	metricsEnabled, err := getBool("METRICS_ENABLED", true)
	if err != nil {
		return nil, err
	}
	envelope, err := getBool("CRYPTO_ENVELOPE", false)
	if err != nil {
		return nil, err
	}
	samplingRate, err := getFloat("OTEL_SAMPLING_RATE", 1.0)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseDriver:     strings.ToLower(getEnv("DATABASE_DRIVER", DriverMySQL)),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		MigrationsDir:      os.Getenv("MIGRATIONS_DIR"),

		OtelEnabled:      otelEnabled,
		OtelEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OtelServiceName:  getEnv("OTEL_SERVICE_NAME", "access-key-service"),
		OtelSamplingRate: samplingRate,

		MetricsEnabled: metricsEnabled,

		Crypto: CryptoConfig{
			Backend:           getEnv("CRYPTO_BACKEND", crypto.TagLocalAES),
			DecryptBackends:   splitList(os.Getenv("CRYPTO_DECRYPT_BACKENDS")),
			Envelope:          envelope,
			MasterKey:         os.Getenv("APP_MASTER_KEY"),
			KMSKeyName:        os.Getenv("KMS_KEY_NAME"),
			AWSKMSKeyID:       os.Getenv("AWS_KMS_KEY_ID"),
			AWSRegion:         os.Getenv("AWS_REGION"),
			VaultAddress:      os.Getenv("VAULT_ADDR"),
			VaultToken:        os.Getenv("VAULT_TOKEN"),
			VaultTransitMount: getEnv("VAULT_TRANSIT_MOUNT", "transit"),
			VaultTransitKey:   os.Getenv("VAULT_TRANSIT_KEY"),
		},
	}, nil
}

// Validate はサーバ起動に必要な設定が揃っているかを検証する。
// バックエンド固有の鍵素材は各バックエンドの生成時に検証する。
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.DatabaseDriver != DriverMySQL && c.DatabaseDriver != DriverSQLite {
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverMySQL, DriverSQLite, c.DatabaseDriver))
	}
	if c.OtelSamplingRate < 0 || c.OtelSamplingRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLING_RATE must be within [0, 1], got %v", c.OtelSamplingRate))
	}
	if !crypto.KnownBackend(c.Crypto.Backend) {
		errs = append(errs, fmt.Errorf("CRYPTO_BACKEND %q is not supported", c.Crypto.Backend))
	}
	for _, tag := range c.Crypto.DecryptBackends {
		if !crypto.KnownBackend(tag) {
			errs = append(errs, fmt.Errorf("CRYPTO_DECRYPT_BACKENDS entry %q is not supported", tag))
		}
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, val)
	}
	return b, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, val)
	}
	return f, nil
}

func splitList(val string) []string {
	var out []string
	for _, s := range strings.Split(val, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
