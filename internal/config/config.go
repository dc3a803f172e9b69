package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	Secret     string        `mapstructure:"secret"`
	JWTSecret  string        `mapstructure:"jwt_secret"`

	ShutdownWindow time.Duration `mapstructure:"shutdown_window"`
	DrainWindow    time.Duration `mapstructure:"drain_window"`

	StartRateLimit    int           `mapstructure:"start_rate_limit"`
	StartRateInterval time.Duration `mapstructure:"start_rate_interval"`

	Recognition RecognitionConfig `mapstructure:"recognition"`
	Database    DatabaseConfig    `mapstructure:"database"`
}

type RecognitionConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	Language       string `mapstructure:"language"`
	Punctuate      bool   `mapstructure:"punctuate"`
	InterimResults bool   `mapstructure:"interim_results"`
	Diarize        bool   `mapstructure:"diarize"`
	Encoding       string `mapstructure:"encoding"`
	SampleRate     int    `mapstructure:"sample_rate"`
	Channels       int    `mapstructure:"channels"`
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("shutdown_window", "5s")
	v.SetDefault("drain_window", "3s")
	v.SetDefault("start_rate_limit", 5)
	v.SetDefault("start_rate_interval", "1m")
	v.SetDefault("recognition.model", "nova-2")
	v.SetDefault("recognition.language", "en-US")
	v.SetDefault("recognition.punctuate", true)
	v.SetDefault("recognition.interim_results", true)
	v.SetDefault("recognition.diarize", false)
	v.SetDefault("recognition.encoding", "linear16")
	v.SetDefault("recognition.sample_rate", 16000)
	v.SetDefault("recognition.channels", 1)
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.min_conns", 1)

	// Secrets come from the environment in every deployment.
	v.SetDefault("jwt_secret", os.Getenv("JWT_SECRET"))
	v.SetDefault("recognition.api_key", os.Getenv("DEEPGRAM_API_KEY"))
	v.SetDefault("database.url", os.Getenv("DATABASE_URL"))

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
