package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Version       int                  `mapstructure:"version"`
	Log           LogConfig            `mapstructure:"log"`
	Storage       []StorageConfig      `mapstructure:"storage"`
	Jobs          []JobConfig          `mapstructure:"jobs"`
	Notifications []NotificationConfig `mapstructure:"notifications"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StorageConfig struct {
	Name  string       `mapstructure:"name"`
	Type  string       `mapstructure:"type"`
	S3    *S3Config    `mapstructure:"s3"`
	MinIO *MinIOConfig `mapstructure:"minio"`
}

type S3Config struct {
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// JobConfig is one named purge: which objects, where, and how to delete them.
type JobConfig struct {
	Name    string `mapstructure:"name"`
	Storage string `mapstructure:"storage"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
	Search  string `mapstructure:"search"`
	// DryRun defaults to true when omitted.
	DryRun     *bool          `mapstructure:"dry_run"`
	Strategy   string         `mapstructure:"strategy"`
	BatchSize  int            `mapstructure:"batch_size"`
	KeepLatest bool           `mapstructure:"keep_latest"`
	Schedule   string         `mapstructure:"schedule"`
	Manifest   ManifestConfig `mapstructure:"manifest"`
}

// IsDryRun reports whether the job only lists.
func (j JobConfig) IsDryRun() bool {
	return j.DryRun == nil || *j.DryRun
}

type ManifestConfig struct {
	Path       string           `mapstructure:"path"`
	Compress   bool             `mapstructure:"compress"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
}

type EncryptionConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Password string `mapstructure:"password"`
}

type NotificationConfig struct {
	Type   string              `mapstructure:"type"`
	On     []string            `mapstructure:"on"`
	Config NotificationDetails `mapstructure:"config"`
}

type NotificationDetails struct {
	SMTPHost string            `mapstructure:"smtp_host"`
	SMTPPort int               `mapstructure:"smtp_port"`
	From     string            `mapstructure:"from"`
	To       string            `mapstructure:"to"`
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	URL      string            `mapstructure:"url"`
	Headers  map[string]string `mapstructure:"headers"`
}

// LoadDotEnv loads .env from the working directory when it exists, without
// overriding variables already set.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// LoadConfig reads a config file in any format viper understands and
// expands ${VAR} references in its string fields.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ModifyConfig(&cfg)

	return &cfg, nil
}

func ModifyConfig(cfg *Config) {
	cfg.Log.Level = os.ExpandEnv(cfg.Log.Level)
	cfg.Log.Format = os.ExpandEnv(cfg.Log.Format)

	for i := range cfg.Storage {
		st := &cfg.Storage[i]
		st.Name = os.ExpandEnv(st.Name)
		st.Type = os.ExpandEnv(st.Type)
		if st.S3 != nil {
			st.S3.Region = os.ExpandEnv(st.S3.Region)
			st.S3.Endpoint = os.ExpandEnv(st.S3.Endpoint)
			st.S3.AccessKey = os.ExpandEnv(st.S3.AccessKey)
			st.S3.SecretKey = os.ExpandEnv(st.S3.SecretKey)
		}
		if st.MinIO != nil {
			st.MinIO.Endpoint = os.ExpandEnv(st.MinIO.Endpoint)
			st.MinIO.AccessKey = os.ExpandEnv(st.MinIO.AccessKey)
			st.MinIO.SecretKey = os.ExpandEnv(st.MinIO.SecretKey)
			st.MinIO.Region = os.ExpandEnv(st.MinIO.Region)
		}
	}

	for i := range cfg.Jobs {
		job := &cfg.Jobs[i]
		job.Name = os.ExpandEnv(job.Name)
		job.Storage = os.ExpandEnv(job.Storage)
		job.Bucket = os.ExpandEnv(job.Bucket)
		job.Prefix = os.ExpandEnv(job.Prefix)
		job.Search = os.ExpandEnv(job.Search)
		job.Strategy = os.ExpandEnv(job.Strategy)
		job.Manifest.Path = os.ExpandEnv(job.Manifest.Path)
		job.Manifest.Encryption.Password = os.ExpandEnv(job.Manifest.Encryption.Password)
	}

	for i := range cfg.Notifications {
		nt := &cfg.Notifications[i]
		nt.Type = os.ExpandEnv(nt.Type)
		for j := range nt.On {
			nt.On[j] = os.ExpandEnv(nt.On[j])
		}
		nt.Config.SMTPHost = os.ExpandEnv(nt.Config.SMTPHost)
		nt.Config.From = os.ExpandEnv(nt.Config.From)
		nt.Config.To = os.ExpandEnv(nt.Config.To)
		nt.Config.Username = os.ExpandEnv(nt.Config.Username)
		nt.Config.Password = os.ExpandEnv(nt.Config.Password)
		nt.Config.URL = os.ExpandEnv(nt.Config.URL)
		for k, v := range nt.Config.Headers {
			nt.Config.Headers[k] = os.ExpandEnv(v)
		}
	}
}

// Job returns the job with the given name.
func (c *Config) Job(name string) (JobConfig, bool) {
	for _, j := range c.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return JobConfig{}, false
}
