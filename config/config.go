/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config loads the application configuration.
package config

import (
	"context"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/tomoncle/crud/cache"
	"github.com/tomoncle/crud/database"
	"github.com/tomoncle/crud/events"
	"github.com/tomoncle/crud/repository"
	"github.com/tomoncle/crud/utils"
)

type Config struct {
	Env      string          `yaml:"env"`
	Database database.Config `yaml:"database"`
	Log      LogConfig       `yaml:"log"`
	Queries  QueriesConfig   `yaml:"queries"`
	Redis    RedisConfig     `yaml:"redis"`
	Kafka    KafkaConfig     `yaml:"kafka"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

type QueriesConfig struct {
	// Root holds one <kebab-entity>/sql directory per entity.
	Root string `yaml:"root"`
}

type RedisConfig struct {
	Enable   bool          `yaml:"enable"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

type KafkaConfig struct {
	Enable  bool     `yaml:"enable"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Default returns the built-in configuration: a local sqlite database,
// info logging with caching and publishing disabled.
func Default() *Config {
	db := database.DefaultConfig()
	// empty seed environment follows Env
	db.DataInitConfig.Environment = ""
	return &Config{
		Env:      "dev",
		Database: *db,
		Log:      LogConfig{Level: "info", Format: "text"},
		Queries:  QueriesConfig{Root: repository.DefaultQueriesRoot},
		Redis:    RedisConfig{Addr: "127.0.0.1:6379", Prefix: "crud", TTL: 10 * time.Minute},
		Kafka:    KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "crud.entity-events"},
	}
}

// Load starts from Default, overlays the YAML file at path when it exists
// and finally applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, errors.Wrapf(err, "read config %s", path)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config %s", path)
			}
		}
	}
	cfg.overrideFromEnv()
	return cfg, nil
}

func (c *Config) overrideFromEnv() {
	database.OverrideFromEnv(&c.Database.ConnectionConfig)
	c.Env = utils.EnvDefaultString("APP_ENV", c.Env)
	c.Log.Level = utils.EnvDefaultString("LOG_LEVEL", c.Log.Level)
	c.Log.Format = utils.EnvDefaultString("CONSOLE_LOG_FORMAT", c.Log.Format)
	c.Queries.Root = utils.EnvDefaultString("QUERIES_ROOT", c.Queries.Root)
	c.Redis.Enable = utils.EnvDefaultBool("REDIS_ENABLE", c.Redis.Enable)
	c.Redis.Addr = utils.EnvDefaultString("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = utils.EnvDefaultString("REDIS_PASSWORD", c.Redis.Password)
	c.Kafka.Enable = utils.EnvDefaultBool("KAFKA_ENABLE", c.Kafka.Enable)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if c.Database.DataInitConfig.Environment == "" {
		c.Database.DataInitConfig.Environment = c.Env
	}
}

// ApplyLogging configures every logger from the Log section.
func (c *Config) ApplyLogging() {
	utils.ConfigureConsoleLogFormat(c.Log.Format)
	utils.ConfigureLogLevel(c.Log.Level)
}

// RepositoryOptions returns the repository options implied by the config.
func (c *Config) RepositoryOptions() []repository.Option {
	return []repository.Option{repository.WithQueriesRoot(c.Queries.Root)}
}

// NewCache connects the Redis cache, or returns nil when it is disabled.
func (c *Config) NewCache(ctx context.Context) (cache.Cache, error) {
	if !c.Redis.Enable {
		return nil, nil
	}
	rdb, err := cache.NewRedisClient(ctx, c.Redis.Addr, c.Redis.Password, c.Redis.DB)
	if err != nil {
		return nil, err
	}
	return cache.NewRedisCache(rdb, c.Redis.Prefix, c.Redis.TTL), nil
}

// NewPublisher returns a Kafka publisher, or a no-op one when Kafka is
// disabled.
func (c *Config) NewPublisher() events.Publisher {
	if !c.Kafka.Enable {
		return events.NopPublisher{}
	}
	return events.NewKafkaPublisher(events.NewKafkaWriter(c.Kafka.Brokers, c.Kafka.Topic))
}
