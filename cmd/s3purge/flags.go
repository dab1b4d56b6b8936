package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/dev-tams/s3purge/internal/config"
	"github.com/dev-tams/s3purge/internal/purge"
)

const adhocName = "cli"

// selectionFlags describe one purge on the command line, or point at a
// config file with --config.
func selectionFlags() []cli.Flag {
	return []cli.Flag{
		configFlag(false),
		&cli.StringSliceFlag{
			Name:  "job",
			Usage: "with --config, run only these job names (repeatable)",
		},
		&cli.StringFlag{
			Name:    "bucket",
			Aliases: []string{"b"},
			EnvVars: []string{"S3PURGE_BUCKET"},
			Usage:   "bucket name",
		},
		&cli.StringFlag{
			Name:    "prefix",
			Aliases: []string{"p"},
			EnvVars: []string{"S3PURGE_PREFIX"},
			Usage:   "key prefix to scan (required)",
		},
		&cli.StringFlag{
			Name:    "search",
			Aliases: []string{"s"},
			EnvVars: []string{"S3PURGE_SEARCH"},
			Usage:   "only keys containing this string (empty matches every key under the prefix)",
		},
		&cli.BoolFlag{
			Name:    "keep-latest",
			EnvVars: []string{"S3PURGE_KEEP_LATEST"},
			Usage:   "leave the current version or delete marker of every key in place",
		},
		&cli.StringFlag{
			Name:    "strategy",
			Value:   string(purge.StrategyBatch),
			EnvVars: []string{"S3PURGE_STRATEGY"},
			Usage:   "batch (one bulk delete per batch) or single (one delete per version)",
		},
		&cli.IntFlag{
			Name:    "batch-size",
			Value:   purge.MaxBatchSize,
			EnvVars: []string{"S3PURGE_BATCH_SIZE"},
			Usage:   fmt.Sprintf("objects per batch, 1 to %d", purge.MaxBatchSize),
		},
		&cli.StringFlag{
			Name:    "storage-type",
			Value:   "s3",
			EnvVars: []string{"S3PURGE_STORAGE_TYPE"},
			Usage:   "s3 or minio",
		},
		&cli.StringFlag{
			Name:    "region",
			Value:   "us-east-1",
			EnvVars: []string{"S3PURGE_REGION", "AWS_REGION", "AWS_DEFAULT_REGION"},
			Usage:   "bucket region",
		},
		&cli.StringFlag{
			Name:    "endpoint",
			EnvVars: []string{"S3PURGE_ENDPOINT"},
			Usage:   "service endpoint for S3-compatible stores (required for minio)",
		},
		&cli.BoolFlag{
			Name:    "path-style",
			EnvVars: []string{"S3PURGE_PATH_STYLE"},
			Usage:   "use path-style addressing (s3)",
		},
		&cli.BoolFlag{
			Name:    "use-ssl",
			EnvVars: []string{"S3PURGE_USE_SSL"},
			Usage:   "connect over TLS (minio, when the endpoint has no scheme)",
		},
		&cli.StringFlag{
			Name:    "access-key",
			EnvVars: []string{"S3PURGE_ACCESS_KEY"},
			Usage:   "static access key (s3 falls back to the default credential chain)",
		},
		&cli.StringFlag{
			Name:    "secret-key",
			EnvVars: []string{"S3PURGE_SECRET_KEY"},
			Usage:   "static secret key",
		},
		&cli.StringFlag{
			Name:    "manifest",
			EnvVars: []string{"S3PURGE_MANIFEST"},
			Usage:   "write the candidate list to this file ({timestamp} is expanded)",
		},
		&cli.BoolFlag{
			Name:    "manifest-compress",
			EnvVars: []string{"S3PURGE_MANIFEST_COMPRESS"},
			Usage:   "gzip the manifest",
		},
		&cli.StringFlag{
			Name:    "manifest-password",
			EnvVars: []string{"S3PURGE_MANIFEST_PASSWORD"},
			Usage:   "encrypt the manifest with this password",
		},
	}
}

func purgeFlags() []cli.Flag {
	return append(selectionFlags(), &cli.BoolFlag{
		Name:    "dry-run",
		Value:   true,
		EnvVars: []string{"S3PURGE_DRY_RUN"},
		Usage:   "only list what would be deleted; pass --dry-run=false to delete",
	})
}

// adhocConfig turns the selection flags into a one-job config.
func adhocConfig(c *cli.Context) (*config.Config, error) {
	if c.String("bucket") == "" {
		return nil, fmt.Errorf("--bucket is required (or use --config)")
	}
	if c.String("prefix") == "" {
		return nil, fmt.Errorf("--prefix is required and must not be empty")
	}

	st := config.StorageConfig{Name: adhocName, Type: c.String("storage-type")}
	switch st.Type {
	case "s3":
		st.S3 = &config.S3Config{
			Region:         c.String("region"),
			Endpoint:       c.String("endpoint"),
			ForcePathStyle: c.Bool("path-style"),
			AccessKey:      c.String("access-key"),
			SecretKey:      c.String("secret-key"),
		}
	case "minio":
		st.MinIO = &config.MinIOConfig{
			Endpoint:  c.String("endpoint"),
			AccessKey: c.String("access-key"),
			SecretKey: c.String("secret-key"),
			Region:    c.String("region"),
			UseSSL:    c.Bool("use-ssl"),
		}
	default:
		return nil, fmt.Errorf("--storage-type %q is not supported (s3 or minio)", st.Type)
	}

	dryRun := c.Bool("dry-run")
	job := config.JobConfig{
		Name:       adhocName,
		Storage:    adhocName,
		Bucket:     c.String("bucket"),
		Prefix:     c.String("prefix"),
		Search:     c.String("search"),
		DryRun:     &dryRun,
		Strategy:   c.String("strategy"),
		BatchSize:  c.Int("batch-size"),
		KeepLatest: c.Bool("keep-latest"),
		Manifest: config.ManifestConfig{
			Path:     c.String("manifest"),
			Compress: c.Bool("manifest-compress"),
			Encryption: config.EncryptionConfig{
				Enabled:  c.String("manifest-password") != "",
				Password: c.String("manifest-password"),
			},
		},
	}
	if job.Manifest.Encryption.Enabled && job.Manifest.Path == "" {
		return nil, fmt.Errorf("--manifest-password needs --manifest")
	}

	cfg := &config.Config{
		Version: 1,
		Storage: []config.StorageConfig{st},
		Jobs:    []config.JobConfig{job},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
