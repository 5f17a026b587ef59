package config

import (
	"fmt"
	"github.com/ilyakaznacheev/cleanenv"
	"log"
	"sync"
)

type Listen struct {
	BindIp string `yaml:"bind_ip" env-default:"0.0.0.0"`
	Port   string `yaml:"port" env-default:"8080"`
}

type MongoConfig struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     string `yaml:"port" env-default:"27017"`
	User     string `yaml:"user" env-default:""`
	Password string `yaml:"password" env-default:""`
	Database string `yaml:"database" env-default:"credpool"`
}

// LegacyConfig points at the previous admin panel's SQL database, read
// only by the migration command.
type LegacyConfig struct {
	Enabled  bool   `yaml:"enabled" env-default:"false"`
	Host     string `yaml:"host" env-default:"localhost"`
	Port     string `yaml:"port" env-default:"3306"`
	User     string `yaml:"user" env-default:""`
	Password string `yaml:"password" env-default:""`
	Database string `yaml:"database" env-default:""`
}

type TelegramConfig struct {
	Enabled    bool   `yaml:"enabled" env-default:"false"`
	ApiKey     string `yaml:"api_key" env-default:""`
	ChatId     int64  `yaml:"chat_id" env-default:"0"`
	AlertLevel string `yaml:"alert_level" env-default:"error"`
}

type KeysConfig struct {
	// ExpiryDays is the default lifetime of generated keys; 0 means
	// keys never expire unless the request sets its own lifetime.
	ExpiryDays int `yaml:"expiry_days" env-default:"0"`
}

type Config struct {
	Env       string         `yaml:"env" env-default:"local"`
	Platforms []string       `yaml:"platforms"`
	Listen    Listen         `yaml:"listen"`
	Mongo     MongoConfig    `yaml:"mongo"`
	Legacy    LegacyConfig   `yaml:"legacy"`
	Telegram  TelegramConfig `yaml:"telegram"`
	Keys      KeysConfig     `yaml:"keys"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("config: %s; %s", err, desc)
			instance = nil
			log.Fatal(err)
		}
	})
	return instance
}
