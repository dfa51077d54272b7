package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Minio    MinioConfig    `yaml:"minio"`
	Engine   EngineConfig   `yaml:"engine"`
	Auth     AuthConfig     `yaml:"auth"`
	Store    StoreConfig    `yaml:"store"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Users    []User         `yaml:"users"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	ExpireDays int    `yaml:"expire_days"`
}

// EngineConfig configures the external document-intelligence engine.
type EngineConfig struct {
	APIURL   string `yaml:"api_url"`
	APIToken string `yaml:"api_token"`
	Model    string `yaml:"model"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // memory, postgres
	DSN    string `yaml:"dsn"`
}

// PipelineConfig tunes the extraction pipeline. All durations are seconds in
// the YAML file.
type PipelineConfig struct {
	PhaseTimeoutSeconds int `yaml:"phase_timeout_seconds"` // per-attempt budget
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	CallTimeoutSeconds  int `yaml:"call_timeout_seconds"` // per engine call
	MaxAttempts         int `yaml:"max_attempts"`
	RetryDelaySeconds   int `yaml:"retry_delay_seconds"`
}

func (p PipelineConfig) PhaseTimeout() time.Duration {
	return time.Duration(p.PhaseTimeoutSeconds) * time.Second
}

func (p PipelineConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalSeconds) * time.Second
}

func (p PipelineConfig) CallTimeout() time.Duration {
	return time.Duration(p.CallTimeoutSeconds) * time.Second
}

func (p PipelineConfig) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelaySeconds) * time.Second
}

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Tenant   string `yaml:"tenant"`
}

var GlobalConfig *Config

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Minio.ExpireDays == 0 {
		cfg.Minio.ExpireDays = 7
	}
	if cfg.Auth.TokenExpireHours == 0 {
		cfg.Auth.TokenExpireHours = 24
	}
	if cfg.Engine.Model == "" {
		cfg.Engine.Model = "docintel-v2"
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Pipeline.PhaseTimeoutSeconds == 0 {
		cfg.Pipeline.PhaseTimeoutSeconds = 120
	}
	if cfg.Pipeline.PollIntervalSeconds == 0 {
		cfg.Pipeline.PollIntervalSeconds = 2
	}
	if cfg.Pipeline.CallTimeoutSeconds == 0 {
		cfg.Pipeline.CallTimeoutSeconds = 30
	}
	if cfg.Pipeline.MaxAttempts == 0 {
		cfg.Pipeline.MaxAttempts = 2
	}
	if cfg.Pipeline.RetryDelaySeconds == 0 {
		cfg.Pipeline.RetryDelaySeconds = 2
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
