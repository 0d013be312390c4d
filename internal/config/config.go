package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Backup        BackupConfig       `mapstructure:"backup"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Scheduler     SchedulerConfig    `mapstructure:"scheduler"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

type DatabaseConfig struct {
	Type        string        `mapstructure:"type"`
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	Databases   []string      `mapstructure:"databases"`
	DumpTimeout time.Duration `mapstructure:"dump_timeout"`

	// PostgreSQL specific
	SSLMode string `mapstructure:"ssl_mode"`
}

type BackupConfig struct {
	LocalPath string `mapstructure:"local_path"`
	Compress  bool   `mapstructure:"compress"`
	// CompressionLevel is the gzip level, 1 (fastest) to 9 (smallest).
	CompressionLevel int    `mapstructure:"compression_level"`
	RetentionDays    int    `mapstructure:"retention_days"`
	MaxBackups       int    `mapstructure:"max_backups"`
	TempDir          string `mapstructure:"temp_dir"`
}

type StorageConfig struct {
	Targets []TargetConfig `mapstructure:"targets"`
}

type TargetConfig struct {
	Name    string `mapstructure:"name"`
	Type    string `mapstructure:"type"`
	Enabled bool   `mapstructure:"enabled"`

	// local, ftp, sftp
	Path string `mapstructure:"path"`

	// ftp, sftp
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`

	// ftp
	UseTLS bool `mapstructure:"use_tls"`

	// sftp
	PrivateKey      string `mapstructure:"private_key"`
	KnownHostsPath  string `mapstructure:"known_hosts_path"`
	TrustOnFirstUse bool   `mapstructure:"trust_on_first_use"`

	// s3
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
	Endpoint  string `mapstructure:"endpoint"`

	// gdrive
	CredentialsFile  string `mapstructure:"credentials_file"`
	ClientSecretFile string `mapstructure:"client_secret_file"`
	TokenFile        string `mapstructure:"token_file"`
	FolderID         string `mapstructure:"folder_id"`
	FolderName       string `mapstructure:"folder_name"`

	// telegram
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

type NotificationConfig struct {
	Email    EmailConfig    `mapstructure:"email"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type EmailConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	SMTPHost        string   `mapstructure:"smtp_host"`
	SMTPPort        int      `mapstructure:"smtp_port"`
	Username        string   `mapstructure:"username"`
	Password        string   `mapstructure:"password"`
	From            string   `mapstructure:"from"`
	Recipients      []string `mapstructure:"recipients"`
	UseTLS          bool     `mapstructure:"use_tls"`
	NotifyOnSuccess bool     `mapstructure:"notify_on_success"`
	NotifyOnFailure bool     `mapstructure:"notify_on_failure"`
}

type TelegramConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	BotToken        string `mapstructure:"bot_token"`
	ChatID          int64  `mapstructure:"chat_id"`
	NotifyOnSuccess bool   `mapstructure:"notify_on_success"`
	NotifyOnFailure bool   `mapstructure:"notify_on_failure"`
}

type SchedulerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Cadence     string        `mapstructure:"cadence"`
	Tick        time.Duration `mapstructure:"tick"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// CadenceValidator checks a cadence string. It is supplied by the scheduler
// package so config does not depend on it.
type CadenceValidator func(cadence string) error

var supportedTargets = map[string]bool{
	"local":    true,
	"ftp":      true,
	"sftp":     true,
	"s3":       true,
	"gdrive":   true,
	"telegram": true,
}

func Load(path string, validateCadence CadenceValidator) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DUMPVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyTargetDefaults()

	if err := cfg.Validate(validateCadence); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "dumpvault")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("database.type", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.dump_timeout", "2h")
	v.SetDefault("backup.local_path", "./backups")
	v.SetDefault("backup.compress", true)
	v.SetDefault("backup.compression_level", 9)
	v.SetDefault("backup.retention_days", 30)
	v.SetDefault("backup.max_backups", 10)
	v.SetDefault("notifications.email.smtp_port", 587)
	v.SetDefault("notifications.email.use_tls", true)
	v.SetDefault("notifications.email.notify_on_success", true)
	v.SetDefault("notifications.email.notify_on_failure", true)
	v.SetDefault("notifications.telegram.notify_on_success", true)
	v.SetDefault("notifications.telegram.notify_on_failure", true)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.cadence", "daily@02:00")
	v.SetDefault("scheduler.tick", "1m")
	v.SetDefault("scheduler.stop_timeout", "5s")
}

func (c *Config) applyTargetDefaults() {
	if c.Database.Port == 0 {
		switch c.Database.Type {
		case "postgresql":
			c.Database.Port = 5432
		default:
			c.Database.Port = 3306
		}
	}

	for i := range c.Storage.Targets {
		t := &c.Storage.Targets[i]
		if t.Name == "" {
			t.Name = t.Type
		}
		if t.Port == 0 {
			switch t.Type {
			case "ftp":
				t.Port = 21
			case "sftp":
				t.Port = 22
			}
		}
		if t.Path == "" && (t.Type == "ftp" || t.Type == "sftp") {
			t.Path = "/"
		}
		if t.Timeout == 0 {
			t.Timeout = 30 * time.Second
		}
		if t.Type == "gdrive" && t.FolderID == "" && t.FolderName == "" {
			t.FolderName = "Database Backups"
		}
	}
}

func (c *Config) Validate(validateCadence CadenceValidator) error {
	switch c.Database.Type {
	case "mysql", "postgresql":
	case "":
		return fmt.Errorf("database.type is required")
	default:
		return fmt.Errorf("database.type %q is not supported", c.Database.Type)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Username == "" {
		return fmt.Errorf("database.username is required")
	}

	if c.Backup.LocalPath == "" {
		return fmt.Errorf("backup.local_path is required")
	}
	if c.Backup.CompressionLevel < 1 || c.Backup.CompressionLevel > 9 {
		return fmt.Errorf("backup.compression_level must be between 1 and 9")
	}
	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("backup.retention_days must not be negative")
	}
	if c.Backup.MaxBackups < 0 {
		return fmt.Errorf("backup.max_backups must not be negative")
	}

	seen := make(map[string]bool)
	for i, t := range c.Storage.Targets {
		if !supportedTargets[t.Type] {
			return fmt.Errorf("storage.targets[%d]: unknown type %q", i, t.Type)
		}
		if seen[t.Name] {
			return fmt.Errorf("storage.targets[%d]: duplicate name %q", i, t.Name)
		}
		seen[t.Name] = true

		if !t.Enabled {
			continue
		}
		if err := t.validate(); err != nil {
			return fmt.Errorf("storage.targets[%d] (%s): %w", i, t.Name, err)
		}
	}

	if c.Notifications.Email.Enabled {
		e := c.Notifications.Email
		if e.SMTPHost == "" || e.From == "" || len(e.Recipients) == 0 {
			return fmt.Errorf("notifications.email: smtp_host, from and recipients are required")
		}
	}
	if c.Notifications.Telegram.Enabled {
		if c.Notifications.Telegram.BotToken == "" || c.Notifications.Telegram.ChatID == 0 {
			return fmt.Errorf("notifications.telegram: bot_token and chat_id are required")
		}
	}

	if validateCadence != nil {
		if err := validateCadence(c.Scheduler.Cadence); err != nil {
			return fmt.Errorf("scheduler.cadence: %w", err)
		}
	}

	return nil
}

func (t TargetConfig) validate() error {
	switch t.Type {
	case "local":
		if t.Path == "" {
			return fmt.Errorf("path is required")
		}
	case "ftp", "sftp":
		if t.Host == "" || t.Username == "" {
			return fmt.Errorf("host and username are required")
		}
		if t.Type == "sftp" && t.Password == "" && t.PrivateKey == "" {
			return fmt.Errorf("password or private_key is required")
		}
	case "s3":
		if t.Bucket == "" || t.Region == "" {
			return fmt.Errorf("bucket and region are required")
		}
	case "gdrive":
		if t.CredentialsFile == "" && (t.ClientSecretFile == "" || t.TokenFile == "") {
			return fmt.Errorf("credentials_file or client_secret_file+token_file is required")
		}
	case "telegram":
		if t.BotToken == "" || t.ChatID == 0 {
			return fmt.Errorf("bot_token and chat_id are required")
		}
	}
	return nil
}

func (c *Config) GetEnabledTargets() []TargetConfig {
	var enabled []TargetConfig
	for _, target := range c.Storage.Targets {
		if target.Enabled {
			enabled = append(enabled, target)
		}
	}
	return enabled
}
