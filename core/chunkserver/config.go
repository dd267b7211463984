package chunkserver

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server struct {
		Host string `envconfig:"SERVER_HOST" default:"localhost"`
		Port int    `envconfig:"SERVER_PORT" default:"1235"`
	}
	Chunks struct {
		Path string `envconfig:"CHUNK_PATH" default:"chunks"`

		// CacheSize bounds how many committed sessions are remembered for
		// answering re-submitted final chunks.
		CacheSize int `envconfig:"CHUNK_CACHE_SIZE" default:"1024"`

		SessionTTL    time.Duration `envconfig:"CHUNK_SESSION_TTL" default:"24h"`
		SweepInterval time.Duration `envconfig:"CHUNK_SWEEP_INTERVAL" default:"10m"`
	}
}

func GetConfig() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
