package config

import (
	"fmt"
	"strings"

	"github.com/dev-tams/s3purge/internal/purge"
	"github.com/dev-tams/s3purge/internal/schedule"
)

//simple range over values to validate needed variables

func (c *Config) Validate() error {
	if c.Version == 0 {
		return fmt.Errorf("config.version must be > 0")
	}

	storageNames := map[string]struct{}{}
	for i, st := range c.Storage {
		if st.Name == "" {
			return fmt.Errorf("storage[%d].name is required", i)
		}
		if _, ok := storageNames[st.Name]; ok {
			return fmt.Errorf("storage[%d]: duplicate name %q", i, st.Name)
		}
		storageNames[st.Name] = struct{}{}

		switch st.Type {
		case "s3":
			if st.S3 == nil {
				return fmt.Errorf("storage[%d] (%s): s3 block is required for type s3", i, st.Name)
			}
			if (st.S3.AccessKey == "") != (st.S3.SecretKey == "") {
				return fmt.Errorf("storage[%d] (%s): s3.access_key and s3.secret_key must be set together", i, st.Name)
			}
		case "minio":
			if st.MinIO == nil || st.MinIO.Endpoint == "" {
				return fmt.Errorf("storage[%d] (%s): minio.endpoint is required for type minio", i, st.Name)
			}
		case "":
			return fmt.Errorf("storage[%d].type is required (s3 or minio)", i)
		default:
			return fmt.Errorf("storage[%d].type %q is not supported (s3 or minio)", i, st.Type)
		}
	}

	jobNames := map[string]struct{}{}
	for i, job := range c.Jobs {
		if job.Name == "" {
			return fmt.Errorf("jobs[%d].name is required", i)
		}
		if _, ok := jobNames[job.Name]; ok {
			return fmt.Errorf("jobs[%d]: duplicate name %q", i, job.Name)
		}
		jobNames[job.Name] = struct{}{}

		if job.Storage == "" {
			return fmt.Errorf("jobs[%d].storage is required (must match a storage.name)", i)
		}
		if _, ok := storageNames[job.Storage]; !ok {
			return fmt.Errorf("jobs[%d].storage=%q not found in storage list", i, job.Storage)
		}
		if job.Bucket == "" {
			return fmt.Errorf("jobs[%d].bucket is required", i)
		}
		if job.Prefix == "" {
			return fmt.Errorf("jobs[%d].prefix is required", i)
		}
		if _, err := purge.ParseStrategy(job.Strategy); err != nil {
			return fmt.Errorf("jobs[%d].strategy: %w", i, err)
		}
		if job.BatchSize < 0 || job.BatchSize > purge.MaxBatchSize {
			return fmt.Errorf("jobs[%d].batch_size must be between 1 and %d (0 for default)", i, purge.MaxBatchSize)
		}
		if strings.TrimSpace(job.Schedule) != "" {
			if _, err := schedule.ParseCronSpec(job.Schedule); err != nil {
				return fmt.Errorf("jobs[%d].schedule is invalid: %w", i, err)
			}
		}
		if job.Manifest.Encryption.Enabled {
			if job.Manifest.Path == "" {
				return fmt.Errorf("jobs[%d].manifest.path is required when encryption is enabled", i)
			}
			if job.Manifest.Encryption.Password == "" {
				return fmt.Errorf("jobs[%d].manifest.encryption.password is required when encryption is enabled", i)
			}
		}
	}

	for i, n := range c.Notifications {
		switch n.Type {
		case "webhook":
			if n.Config.URL == "" {
				return fmt.Errorf("notifications[%d].config.url is required for webhook", i)
			}
		case "email":
			if n.Config.SMTPHost == "" || n.Config.SMTPPort == 0 || n.Config.From == "" || n.Config.To == "" {
				return fmt.Errorf("notifications[%d] email config is incomplete (smtp_host/smtp_port/from/to required)", i)
			}
		default:
			return fmt.Errorf("notifications[%d].type %q is not supported (webhook or email)", i, n.Type)
		}
		for _, on := range n.On {
			switch strings.ToLower(strings.TrimSpace(on)) {
			case "success", "failure", "both":
			default:
				return fmt.Errorf("notifications[%d].on %q is not supported (success, failure or both)", i, on)
			}
		}
	}

	return nil
}
