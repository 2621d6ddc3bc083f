// Package config 负责进程配置（环境变量 / .env）与模型目录。
package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config 是 rescored 的进程配置。
type Config struct {
	HTTPAddr string `env:"RESCORE_HTTP_ADDR" envDefault:":8080"`
	LogLevel string `env:"RESCORE_LOG_LEVEL" envDefault:"info"`

	// 模型目录与语料
	CatalogPath string `env:"RESCORE_CATALOG" envDefault:"catalog.yaml"`
	CorpusPath  string `env:"RESCORE_CORPUS" envDefault:"corpus.json"`
	SegmentSize int    `env:"RESCORE_SEGMENT_SIZE" envDefault:"1000"`
	// PipelinePath 为空时使用 pipeline.DefaultConfig
	PipelinePath string `env:"RESCORE_PIPELINE"`

	// 特征并行构建；Workers 为 0 时串行
	Workers         int `env:"RESCORE_WEIGHT_WORKERS" envDefault:"0"`
	GlobalPermits   int `env:"RESCORE_WEIGHT_GLOBAL_PERMITS" envDefault:"64"`
	PerQueryPermits int `env:"RESCORE_WEIGHT_QUERY_PERMITS" envDefault:"8"`

	// 特征向量缓存：memory | redis
	CacheBackend string        `env:"RESCORE_CACHE_BACKEND" envDefault:"memory"`
	CacheName    string        `env:"RESCORE_CACHE_NAME" envDefault:"rerank"`
	CacheSize    int           `env:"RESCORE_CACHE_SIZE" envDefault:"100000"`
	CacheTTL     time.Duration `env:"RESCORE_CACHE_TTL" envDefault:"10m"`
	RedisAddr    string        `env:"RESCORE_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB      int           `env:"RESCORE_REDIS_DB" envDefault:"0"`
	RedisPass    string        `env:"RESCORE_REDIS_PASSWORD"`
}

// Load 读取 .env（不存在时忽略）和环境变量。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
