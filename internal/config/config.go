package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Intake   IntakeConfig   `yaml:"intake"`
	Workers  WorkersConfig  `yaml:"workers"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	// Driver is "mysql" in production; "sqlite3" is accepted for local runs.
	Driver             string        `yaml:"driver"`
	DSN                string        `yaml:"dsn"`
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	Charset            string        `yaml:"charset"`
	ParseTime          bool          `yaml:"parse_time"`
	Loc                string        `yaml:"loc"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
}

type RedisConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	PoolSize      int    `yaml:"pool_size"`
	ImportQueue   string `yaml:"import_queue"`
	DLQSuffix     string `yaml:"dlq_suffix"`
	EventsChannel string `yaml:"events_channel"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string        `yaml:"endpoint"`
	AccessKey string        `yaml:"access_key"`
	SecretKey string        `yaml:"secret_key"`
	Bucket    string        `yaml:"bucket"`
	Region    string        `yaml:"region"`
	UseSSL    bool          `yaml:"use_ssl"`
	URLExpiry time.Duration `yaml:"url_expiry"`
}

type WebhookConfig struct {
	// URL is the last fallback; the settings table and WEBHOOK_URL win over it.
	URL            string        `yaml:"url"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxResponseLen int64         `yaml:"max_response_len"`
}

type IntakeConfig struct {
	MaxUploadSize     int64    `yaml:"max_upload_size"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	DefaultPageSize   int      `yaml:"default_page_size"`
	MaxPageSize       int      `yaml:"max_page_size"`
	BulkConcurrency   int      `yaml:"bulk_concurrency"`
	DefaultStage      string   `yaml:"default_stage"`
	DefaultPipeline   string   `yaml:"default_pipeline"`
	ImportKeyPrefix   string   `yaml:"import_key_prefix"`
	ResumeKeyPrefix   string   `yaml:"resume_key_prefix"`
	MaxImportRows     int      `yaml:"max_import_rows"`
}

type WorkersConfig struct {
	Import ImportWorkerConfig `yaml:"import"`
}

type ImportWorkerConfig struct {
	Count       int           `yaml:"count"`
	QueueSize   int           `yaml:"queue_size"`
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML, applies env overrides and fills defaults.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.Webhook.URL = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		c.Storage.S3.Bucket = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Webhook.Timeout <= 0 {
		c.Webhook.Timeout = 30 * time.Second
	}
	if c.Webhook.MaxResponseLen <= 0 {
		c.Webhook.MaxResponseLen = 1 << 20
	}
	if c.Storage.S3.URLExpiry <= 0 {
		c.Storage.S3.URLExpiry = time.Hour
	}
	if c.Intake.MaxUploadSize <= 0 {
		c.Intake.MaxUploadSize = 10 << 20
	}
	if len(c.Intake.AllowedExtensions) == 0 {
		c.Intake.AllowedExtensions = []string{".pdf", ".doc", ".docx"}
	}
	if c.Intake.DefaultPageSize <= 0 {
		c.Intake.DefaultPageSize = 20
	}
	if c.Intake.MaxPageSize <= 0 {
		c.Intake.MaxPageSize = 200
	}
	if c.Intake.BulkConcurrency <= 0 {
		c.Intake.BulkConcurrency = 4
	}
	if c.Intake.DefaultPipeline == "" {
		c.Intake.DefaultPipeline = "default"
	}
	if c.Intake.ImportKeyPrefix == "" {
		c.Intake.ImportKeyPrefix = "imports"
	}
	if c.Intake.ResumeKeyPrefix == "" {
		c.Intake.ResumeKeyPrefix = "resumes"
	}
	if c.Intake.MaxImportRows <= 0 {
		c.Intake.MaxImportRows = 5000
	}
	if c.Redis.ImportQueue == "" {
		c.Redis.ImportQueue = "intake:imports"
	}
	if c.Redis.DLQSuffix == "" {
		c.Redis.DLQSuffix = ":dlq"
	}
	if c.Redis.EventsChannel == "" {
		c.Redis.EventsChannel = "intake:events"
	}
	if c.Workers.Import.Count <= 0 {
		c.Workers.Import.Count = 2
	}
	if c.Workers.Import.QueueSize <= 0 {
		c.Workers.Import.QueueSize = c.Workers.Import.Count * 2
	}
	if c.Workers.Import.PollTimeout <= 0 {
		c.Workers.Import.PollTimeout = 5 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "sqlite3":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Intake.DefaultPageSize > c.Intake.MaxPageSize {
		return fmt.Errorf("default_page_size %d exceeds max_page_size %d",
			c.Intake.DefaultPageSize, c.Intake.MaxPageSize)
	}
	return nil
}

// MySQL DSN format: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
func (c *Config) DatabaseDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Charset, c.Database.ParseTime, c.Database.Loc)
}

func (c *Config) RedisAddr() string {
	if c.Redis.Addr != "" {
		return c.Redis.Addr
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
