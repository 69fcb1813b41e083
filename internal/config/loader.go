package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort             = 3001
	DefaultAllowedOrigin    = "http://localhost:5173"
	DefaultExchangeCapacity = 2000
	DefaultDeviceStorePath  = "device_data/device_details.json"
)

// LoadConfig loads configuration from YAML, .env and environment variables.
// A missing YAML file is not an error: defaults plus environment are used.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	cfg.Env = nonEmpty(cfg.Env, "development")
	cfg.Port = orDefaultInt(cfg.Port, DefaultPort)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{DefaultAllowedOrigin}
	}
	cfg.RequestTimeout = orDefaultDur(cfg.RequestTimeout, 60*time.Second)
	cfg.Logger.Level = nonEmpty(cfg.Logger.Level, "info")
	cfg.Logger.Encoding = nonEmpty(cfg.Logger.Encoding, "console")
	cfg.Logger.Output = nonEmpty(cfg.Logger.Output, "stdout")

	cfg.Upstream.BaseURL = strings.TrimRight(cfg.Upstream.BaseURL, "/")
	cfg.Upstream.Timeout = orDefaultDur(cfg.Upstream.Timeout, 30*time.Second)
	cfg.DeviceStore.Path = nonEmpty(cfg.DeviceStore.Path, DefaultDeviceStorePath)
	cfg.ExchangeLog.Capacity = orDefaultInt(cfg.ExchangeLog.Capacity, DefaultExchangeCapacity)

	cfg.TokenCache.DefaultTTL = orDefaultDur(cfg.TokenCache.DefaultTTL, 5*time.Minute)
	cfg.TokenCache.ExpirySkew = orDefaultDur(cfg.TokenCache.ExpirySkew, 30*time.Second)
	cfg.TokenCache.KeyPrefix = nonEmpty(cfg.TokenCache.KeyPrefix, "rba:jwt:")

	cfg.RateLimit.RatePerInterval = orDefaultInt(cfg.RateLimit.RatePerInterval, 100)
	cfg.RateLimit.Interval = orDefaultDur(cfg.RateLimit.Interval, time.Second)
	cfg.RateLimit.Burst = orDefaultInt(cfg.RateLimit.Burst, cfg.RateLimit.RatePerInterval)

	cfg.Telemetry.Kafka.TopicExchange = nonEmpty(cfg.Telemetry.Kafka.TopicExchange, "rba.exchanges")
	cfg.Telemetry.Kafka.TopicRequest = nonEmpty(cfg.Telemetry.Kafka.TopicRequest, "rba.requests")
	cfg.Telemetry.ES.IndexPref = nonEmpty(cfg.Telemetry.ES.IndexPref, "rba-exchanges")
}

// overrideWithEnv walks the config tree and applies `env` tagged fields.
func overrideWithEnv(cfg *Config) error {
	return overrideStruct(reflect.ValueOf(cfg).Elem())
}

func overrideStruct(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if fieldVal.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Duration(0)) {
			if err := overrideStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envKey := field.Tag.Get("env")
		if envKey == "" {
			continue
		}
		envValue, exists := os.LookupEnv(envKey)
		if !exists || strings.TrimSpace(envValue) == "" {
			continue
		}

		switch fieldVal.Kind() {
		case reflect.String:
			fieldVal.SetString(envValue)
		case reflect.Int:
			intValue, err := strconv.Atoi(envValue)
			if err != nil {
				return fmt.Errorf("env %s: %w", envKey, err)
			}
			fieldVal.SetInt(int64(intValue))
		case reflect.Int64:
			d, err := time.ParseDuration(envValue)
			if err != nil {
				return fmt.Errorf("env %s: %w", envKey, err)
			}
			fieldVal.SetInt(int64(d))
		case reflect.Bool:
			// anything that does not parse as true is false
			boolValue, _ := strconv.ParseBool(strings.TrimSpace(envValue))
			fieldVal.SetBool(boolValue)
		case reflect.Slice:
			if field.Type.Elem().Kind() == reflect.String {
				parts := strings.Split(envValue, ",")
				out := make([]string, 0, len(parts))
				for _, p := range parts {
					if p = strings.TrimSpace(p); p != "" {
						out = append(out, p)
					}
				}
				fieldVal.Set(reflect.ValueOf(out))
			}
		}
	}
	return nil
}

func nonEmpty(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultDur(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
