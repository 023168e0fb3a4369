// Package config loads the service configuration from configs/config.yml and
// TASMOTA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "TASMOTA"

type Config struct {
	Port string
	Log  Log
	DB   DB
	MQTT MQTT
	Auth Auth
	HTTP HTTP

	PrinterTick time.Duration
}

type Log struct {
	Level string
}

type DB struct {
	Path string
}

// MQTT describes the broker. An empty Broker leaves the transport unbound.
type MQTT struct {
	Broker   string
	User     string
	Password string
	ClientID string
	QoS      byte
	Timeout  time.Duration
}

type Auth struct {
	SigningKey string
	TokenTTL   time.Duration
}

type HTTP struct {
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration

	// AllowedOrigins lists browser origins that may open the websocket; "*" allows any.
	AllowedOrigins []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("db.path", "app.db")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.user", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "tasmota-relayd")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.timeout", 10*time.Second)
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("printer.tick", time.Second)
	v.SetDefault("http.read_header_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.allowed_origins", []string{})
}

// Load reads config.yml from dir. A missing file is not an error; defaults and the
// environment still apply.
func Load(dir string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	qos := v.GetInt("mqtt.qos")
	if qos < 0 || qos > 2 {
		return Config{}, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", qos)
	}
	cfg := Config{
		Port: v.GetString("port"),
		Log:  Log{Level: v.GetString("log.level")},
		DB:   DB{Path: v.GetString("db.path")},
		MQTT: MQTT{
			Broker:   v.GetString("mqtt.broker"),
			User:     v.GetString("mqtt.user"),
			Password: v.GetString("mqtt.password"),
			ClientID: v.GetString("mqtt.client_id"),
			QoS:      byte(qos),
			Timeout:  v.GetDuration("mqtt.timeout"),
		},
		Auth: Auth{
			SigningKey: v.GetString("auth.signing_key"),
			TokenTTL:   v.GetDuration("auth.token_ttl"),
		},
		HTTP: HTTP{
			ReadHeaderTimeout: v.GetDuration("http.read_header_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			ShutdownTimeout:   v.GetDuration("http.shutdown_timeout"),
			AllowedOrigins:    v.GetStringSlice("http.allowed_origins"),
		},
		PrinterTick: v.GetDuration("printer.tick"),
	}
	if cfg.PrinterTick <= 0 {
		return Config{}, fmt.Errorf("printer.tick must be positive, got %s", cfg.PrinterTick)
	}
	return cfg, nil
}
