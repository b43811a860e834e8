package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	Survey  SurveyConfig  `yaml:"survey"`
	Mailer  MailerConfig  `yaml:"mailer"`
	SES     SESConfig     `yaml:"ses"`
	Mailgun MailgunConfig `yaml:"mailgun"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Timeout returns the configured request timeout as a duration
func (c ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// StorageConfig holds document store configuration
type StorageConfig struct {
	Type           string `yaml:"type"` // "dynamodb", "badger" or "postgres"
	DynamoDBTable  string `yaml:"dynamodb_table"`
	AWSRegion      string `yaml:"aws_region"`
	AWSProfile     string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
	BadgerPath     string `yaml:"badger_path"`
	BadgerInMemory bool   `yaml:"badger_in_memory"`
	PostgresDSN    string `yaml:"postgres_dsn"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return "" // Use default credential chain (IAM role)
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// SurveyConfig holds survey engine configuration
type SurveyConfig struct {
	FrontendURL     string `yaml:"frontend_url"`
	CacheSize       int    `yaml:"cache_size"`
	TokenRetryLimit int    `yaml:"token_retry_limit"`
}

// MailerConfig selects the outbound email provider
type MailerConfig struct {
	Provider string `yaml:"provider"` // "ses", "mailgun" or "noop"
	Sender   string `yaml:"sender"`
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MailgunConfig holds Mailgun API configuration
type MailgunConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Domain         string `yaml:"domain"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c MailgunConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads and parses the configuration file
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
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.TimeoutSeconds == 0 {
		cfg.Server.TimeoutSeconds = 30
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "badger"
	}
	if cfg.Storage.BadgerPath == "" {
		cfg.Storage.BadgerPath = "./data"
	}
	if cfg.Storage.DynamoDBTable == "" {
		cfg.Storage.DynamoDBTable = "survey-documents"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-west-2"
	}
	if cfg.Survey.FrontendURL == "" {
		cfg.Survey.FrontendURL = "http://localhost:3000"
	}
	if cfg.Survey.CacheSize == 0 {
		cfg.Survey.CacheSize = 256
	}
	if cfg.Survey.TokenRetryLimit == 0 {
		cfg.Survey.TokenRetryLimit = 5
	}
	if cfg.Mailer.Provider == "" {
		cfg.Mailer.Provider = "noop"
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.Mailgun.BaseURL == "" {
		cfg.Mailgun.BaseURL = "https://api.mailgun.net"
	}
	if cfg.Mailgun.TimeoutSeconds == 0 {
		cfg.Mailgun.TimeoutSeconds = 30
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if storageType := os.Getenv("STORAGE_TYPE"); storageType != "" {
		cfg.Storage.Type = storageType
	}
	if table := os.Getenv("DYNAMODB_TABLE"); table != "" {
		cfg.Storage.DynamoDBTable = table
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.Storage.AWSRegion = region
	}

	// Database override (critical for ECS deployment where config.yaml has local defaults)
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}

	if frontend := os.Getenv("FRONTEND_URL"); frontend != "" {
		cfg.Survey.FrontendURL = frontend
	}
	if provider := os.Getenv("MAILER_PROVIDER"); provider != "" {
		cfg.Mailer.Provider = provider
	}
	if sender := os.Getenv("MAIL_SENDER"); sender != "" {
		cfg.Mailer.Sender = sender
	}
	if accessKey := os.Getenv("AWS_SES_ACCESS_KEY"); accessKey != "" {
		cfg.SES.AccessKey = accessKey
	}
	if secretKey := os.Getenv("AWS_SES_SECRET_KEY"); secretKey != "" {
		cfg.SES.SecretKey = secretKey
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.SES.Region = region
	}
	if apiKey := os.Getenv("MAILGUN_API_KEY"); apiKey != "" {
		cfg.Mailgun.APIKey = apiKey
	}
	if baseURL := os.Getenv("MAILGUN_BASE_URL"); baseURL != "" {
		cfg.Mailgun.BaseURL = baseURL
	}
	if domain := os.Getenv("MAILGUN_DOMAIN"); domain != "" {
		cfg.Mailgun.Domain = domain
	}

	return cfg, nil
}
