package storage

import (
	"context"
	"fmt"

	"github.com/dev-tams/s3purge/internal/config"
	miniostore "github.com/dev-tams/s3purge/internal/storage/minio"
	s3store "github.com/dev-tams/s3purge/internal/storage/s3"
)

func FromConfig(ctx context.Context, cfg *config.Config) (map[string]Backend, error) {
	return FromConfigByNames(ctx, cfg, nil)
}

// FromConfigByNames builds only storage backends whose names are present in include.
// If include is nil, all configured backends are built.
func FromConfigByNames(ctx context.Context, cfg *config.Config, include map[string]struct{}) (map[string]Backend, error) {
	out := make(map[string]Backend, len(cfg.Storage))

	for _, st := range cfg.Storage {
		if include != nil {
			if _, ok := include[st.Name]; !ok {
				continue
			}
		}

		b, err := Build(ctx, st)
		if err != nil {
			return nil, err
		}
		out[st.Name] = b
	}

	return out, nil
}

// Build creates the backend for one storage entry.
func Build(ctx context.Context, st config.StorageConfig) (Backend, error) {
	switch st.Type {
	case "s3":
		if st.S3 == nil {
			return nil, fmt.Errorf("storage %s: s3 config missing", st.Name)
		}
		s, err := s3store.New(ctx, s3store.Options{
			Name:           st.Name,
			Region:         st.S3.Region,
			Endpoint:       st.S3.Endpoint,
			ForcePathStyle: st.S3.ForcePathStyle,
			AccessKey:      st.S3.AccessKey,
			SecretKey:      st.S3.SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("storage %s: %w", st.Name, err)
		}
		return s, nil

	case "minio":
		if st.MinIO == nil {
			return nil, fmt.Errorf("storage %s: minio config missing", st.Name)
		}
		if st.MinIO.AccessKey == "" || st.MinIO.SecretKey == "" {
			return nil, fmt.Errorf("storage %s: minio.access_key and minio.secret_key are required (or env expansion failed)", st.Name)
		}
		s, err := miniostore.New(miniostore.Options{
			Name:      st.Name,
			Endpoint:  st.MinIO.Endpoint,
			AccessKey: st.MinIO.AccessKey,
			SecretKey: st.MinIO.SecretKey,
			Region:    st.MinIO.Region,
			UseSSL:    st.MinIO.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("storage %s: %w", st.Name, err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("storage %s: unknown type %q", st.Name, st.Type)
	}
}
