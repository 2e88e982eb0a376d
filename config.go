package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile    = "./config.yml"
	DefaultConfigEnvFile = "./config.env"
	ConfigEnvPrefix      = "BSAP"
)

// Config defines the structure of the configuration file.
type Config struct {
	GitCommit          string         `yaml:"git_commit" envconfig:"BSAP_GIT_COMMIT"`
	GitTag             string         `yaml:"git_tag" envconfig:"BSAP_GIT_TAG"`
	BuildTime          string         `yaml:"build_time" envconfig:"BSAP_BUILD_TIME"`
	IsProduction       bool           `yaml:"is_production" envconfig:"BSAP_IS_PRODUCTION"`
	LogLevel           zapcore.Level  `yaml:"log_level" envconfig:"BSAP_LOG_LEVEL"`
	LogFolder          string         `yaml:"log_folder" envconfig:"BSAP_LOG_FOLDER"`
	LogMaxSize         int            `yaml:"log_max_size" envconfig:"BSAP_LOG_MAX_SIZE"`
	ProfilerEnable     bool           `yaml:"profiler_enable" envconfig:"BSAP_PROFILER_ENABLE"`
	OpsEndpointsEnable bool           `yaml:"ops_endpoints_enable" envconfig:"BSAP_OPS_ENDPOINTS_ENABLE"`
	Server             ServerConfig   `yaml:"server"`
	Postgres           PostgresConfig `yaml:"postgres"`
	Redis              RedisConfig    `yaml:"redis"`
	BoltDB             BoltDBConfig   `yaml:"boltdb"`
	Auth               AuthConfig     `yaml:"auth"`
	Books              BooksConfig    `yaml:"books"`
	Mail               MailConfig     `yaml:"mail"`
	Ops                OpsConfig      `yaml:"ops"`
}

type ServerConfig struct {
	Host                    string        `yaml:"host" envconfig:"BSAP_SERVER_HOST"`
	Port                    string        `yaml:"port" envconfig:"BSAP_SERVER_PORT"`
	AllowedOrigin           string        `yaml:"allowed_origin" envconfig:"BSAP_SERVER_ALLOWED_ORIGIN"`
	ReadTimeout             time.Duration `yaml:"read_timeout" envconfig:"BSAP_SERVER_READ_TIMEOUT"`
	WriteTimeout            time.Duration `yaml:"write_timeout" envconfig:"BSAP_SERVER_WRITE_TIMEOUT"`
	RequestTimeout          time.Duration `yaml:"request_timeout" envconfig:"BSAP_SERVER_REQUEST_TIMEOUT"` // Time to wait for a request to finish
	LongRequestWriteTimeout time.Duration `yaml:"long_request_write_timeout" envconfig:"BSAP_SERVER_LONG_REQUEST_WRITE_TIMEOUT"`
	ShutdownTimeout         time.Duration `yaml:"shutdown_timeout" envconfig:"BSAP_SERVER_SHUTDOWN_TIMEOUT"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn" envconfig:"BSAP_POSTGRES_DSN" json:"-"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"BSAP_POSTGRES_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"BSAP_POSTGRES_MAX_IDLE_CONNS"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" envconfig:"BSAP_POSTGRES_CONN_MAX_IDLE_TIME"`
	PingTimeout     time.Duration `yaml:"ping_timeout" envconfig:"BSAP_POSTGRES_PING_TIMEOUT"`
}

type RedisConfig struct {
	Host          string        `yaml:"host" envconfig:"BSAP_REDIS_HOST"`
	Port          string        `yaml:"port" envconfig:"BSAP_REDIS_PORT"`
	DialTimeout   time.Duration `yaml:"dial_timeout" envconfig:"BSAP_REDIS_DIAL_TIMEOUT"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"BSAP_REDIS_READ_TIMEOUT"`
	WriteTimeout  time.Duration `yaml:"write_timeout" envconfig:"BSAP_REDIS_WRITE_TIMEOUT"`
	PoolSize      int           `yaml:"pool_size" envconfig:"BSAP_REDIS_POOL_SIZE"`
	PoolTimeout   time.Duration `yaml:"pool_timeout" envconfig:"BSAP_REDIS_POOL_TIMEOUT"`
	Username      string        `yaml:"username" envconfig:"BSAP_REDIS_USERNAME"`
	Password      string        `yaml:"password" envconfig:"BSAP_REDIS_PASSWORD" json:"-"`
	DatabaseIndex int           `yaml:"db_index" envconfig:"BSAP_REDIS_DATABASE_INDEX"`
}

type BoltDBConfig struct {
	FilePath   string        `yaml:"filepath" envconfig:"BSAP_BOLTDB_FILE_PATH"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"BSAP_BOLTDB_TIMEOUT"`
	BucketName string        `yaml:"bucket_name" envconfig:"BSAP_BOLTDB_BUCKET_NAME"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" envconfig:"BSAP_AUTH_JWT_SECRET" json:"-"`
	TokenTTL  time.Duration `yaml:"token_ttl" envconfig:"BSAP_AUTH_TOKEN_TTL"`
	RateLimit float64       `yaml:"rate_limit" envconfig:"BSAP_AUTH_RATE_LIMIT"` // requests per second and per client ip
	RateBurst int           `yaml:"rate_burst" envconfig:"BSAP_AUTH_RATE_BURST"`
}

type BooksConfig struct {
	DefaultPageLimit int `yaml:"default_page_limit" envconfig:"BSAP_BOOKS_DEFAULT_PAGE_LIMIT"`
	MaxPageLimit     int `yaml:"max_page_limit" envconfig:"BSAP_BOOKS_MAX_PAGE_LIMIT"`
}

type MailConfig struct {
	Host     string `yaml:"host" envconfig:"BSAP_MAIL_HOST"`
	Port     string `yaml:"port" envconfig:"BSAP_MAIL_PORT"`
	Username string `yaml:"username" envconfig:"BSAP_MAIL_USERNAME"`
	Password string `yaml:"password" envconfig:"BSAP_MAIL_PASSWORD" json:"-"`
	From     string `yaml:"from" envconfig:"BSAP_MAIL_FROM"`
}

type OpsConfig struct {
	Username string `yaml:"username" envconfig:"BSAP_OPS_USERNAME"`
	Password string `yaml:"password" envconfig:"BSAP_OPS_PASSWORD" json:"-"`
}

// LoadConfigFile provides an instance of config structure for the all application.
func LoadConfigFile(configFile string) (*Config, error) {
	file, err := os.Open(configFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	cfg := &Config{}
	yd := yaml.NewDecoder(file)
	err = yd.Decode(cfg)

	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigEnvs reads the environments variables and provides an instance of the App config.
func LoadConfigEnvs(prefix string, config *Config) error {
	return envconfig.Process(prefix, config)
}

// InitConfig setup defaults values for non provided parameters
// and configures build tags values to be used if provided.
func InitConfig(config *Config, gitCommit, gitTag, buildTime string) error {
	if len(gitCommit) != 0 {
		config.GitCommit = gitCommit
	}

	if len(gitTag) != 0 {
		config.GitTag = gitTag
	}

	if len(buildTime) != 0 {
		config.BuildTime = buildTime
	}

	if len(config.Server.Host) == 0 || len(config.Server.Port) == 0 {
		return errors.New("make sure to set valid server address and port in configuration file")
	}

	if len(config.Postgres.DSN) == 0 {
		return errors.New("make sure to set valid postgres dsn in configuration file")
	}

	if len(config.Redis.Host) == 0 || len(config.Redis.Port) == 0 {
		return errors.New("make sure to set valid redis address and port in configuration file")
	}

	if len(config.Auth.JWTSecret) < 16 {
		return errors.New("make sure to set a jwt secret of at least 16 characters")
	}

	setConfigDefaults(config)
	return nil
}

func setConfigDefaults(config *Config) {
	if config.LogFolder == "" {
		config.LogFolder = "./logs"
	}
	if config.LogMaxSize <= 0 {
		config.LogMaxSize = 10
	}
	if config.Server.RequestTimeout <= 0 {
		config.Server.RequestTimeout = 30 * time.Second
	}
	if config.Server.ShutdownTimeout <= 0 {
		config.Server.ShutdownTimeout = 30 * time.Second
	}
	if config.Postgres.PingTimeout <= 0 {
		config.Postgres.PingTimeout = 5 * time.Second
	}
	if config.BoltDB.FilePath == "" {
		config.BoltDB.FilePath = "./db/bookshelf.backup.db"
	}
	if config.BoltDB.BucketName == "" {
		config.BoltDB.BucketName = "books"
	}
	if config.Auth.TokenTTL <= 0 {
		config.Auth.TokenTTL = 24 * time.Hour
	}
	if config.Auth.RateLimit <= 0 {
		config.Auth.RateLimit = 2
	}
	if config.Auth.RateBurst <= 0 {
		config.Auth.RateBurst = 4
	}
	if config.Books.DefaultPageLimit <= 0 {
		config.Books.DefaultPageLimit = 10
	}
	if config.Books.MaxPageLimit <= 0 {
		config.Books.MaxPageLimit = 100
	}
	if config.Mail.From == "" {
		config.Mail.From = "no-reply@bookshelf.local"
	}
}

// LoadAndInitConfigs loads in order the configs from various predefined sources
// then build the App configuration data. The env file is optional.
func LoadAndInitConfigs(gitCommit, gitTag, buildTime string) (*Config, error) {
	configFile := DefaultConfigFile
	if f := os.Getenv(ConfigEnvPrefix + "_CONFIG_FILE"); f != "" {
		configFile = f
	}

	// Setup the yaml configuration from file.
	config, err := LoadConfigFile(configFile)
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from file: %s", err)
	}

	// Set the environment configuration.
	err = godotenv.Load(DefaultConfigEnvFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config, fmt.Errorf("failed to set environment configurations: %s", err)
	}

	// Use environment variables with prefix `BSAP`.
	err = LoadConfigEnvs(ConfigEnvPrefix, config)
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from environment: %s", err)
	}

	err = InitConfig(config, gitCommit, gitTag, buildTime)
	if err != nil {
		return config, fmt.Errorf("failed to initialize configurations: %s", err)
	}
	return config, nil
}
