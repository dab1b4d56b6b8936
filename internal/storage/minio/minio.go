// Package miniostore runs purges against MinIO and other S3-compatible
// servers through minio-go.
package miniostore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dev-tams/s3purge/internal/purge"
)

// API is the subset of *minio.Client the backend calls.
type API interface {
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
	RemoveObjects(ctx context.Context, bucket string, objectsCh <-chan minio.ObjectInfo, opts minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError
}

type Storage struct {
	name   string
	client API
}

type Options struct {
	Name string
	// Endpoint is host:port, or a URL whose scheme decides UseSSL.
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

func New(opt Options) (*Storage, error) {
	host, secure, err := splitEndpoint(opt.Endpoint, opt.UseSSL)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(opt.AccessKey, opt.SecretKey, ""),
		Secure: secure,
		Region: opt.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return NewWithClient(opt.Name, client), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(name string, client API) *Storage {
	return &Storage{name: name, client: client}
}

func (s *Storage) Name() string {
	return s.name
}

// ListObjectVersions returns every version under prefix as a single page;
// minio-go follows the listing markers itself.
func (s *Storage) ListObjectVersions(ctx context.Context, bucket, prefix string, _ *purge.Cursor) (*purge.Page, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	page := &purge.Page{}
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:       prefix,
		Recursive:    true,
		WithVersions: true,
	}) {
		if obj.Err != nil {
			return nil, responseError("minio list object versions", obj.Err)
		}
		ref := purge.ObjectVersionRef{
			Key:          obj.Key,
			VersionID:    obj.VersionID,
			DeleteMarker: obj.IsDeleteMarker,
			IsLatest:     obj.IsLatest,
		}
		if ref.DeleteMarker {
			page.DeleteMarkers = append(page.DeleteMarkers, ref)
		} else {
			page.Versions = append(page.Versions, ref)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return page, nil
}

func (s *Storage) DeleteObject(ctx context.Context, bucket string, ref purge.ObjectVersionRef) error {
	err := s.client.RemoveObject(ctx, bucket, ref.Key, minio.RemoveObjectOptions{VersionID: ref.VersionID})
	if err != nil {
		return responseError("minio remove object", err)
	}
	return nil
}

// DeleteObjects feeds refs to a single multi-object delete. Errors naming an
// object and carrying a server error code are reported per object. An error
// without an object name or without a code fails the whole call, and the
// first such error is the one returned.
func (s *Storage) DeleteObjects(ctx context.Context, bucket string, refs []purge.ObjectVersionRef) (*purge.DeleteOutput, error) {
	if len(refs) > purge.MaxBatchSize {
		return nil, fmt.Errorf("minio remove objects: %d refs exceeds the limit of %d", len(refs), purge.MaxBatchSize)
	}

	objectsCh := make(chan minio.ObjectInfo, len(refs))
	for _, ref := range refs {
		objectsCh <- minio.ObjectInfo{Key: ref.Key, VersionID: ref.VersionID}
	}
	close(objectsCh)

	failed := make(map[[2]string]purge.DeleteError)
	var callErr error
	for rerr := range s.client.RemoveObjects(ctx, bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		resp := minio.ToErrorResponse(rerr.Err)
		if rerr.ObjectName == "" || resp.Code == "" {
			if callErr == nil {
				callErr = rerr.Err
			}
			continue
		}
		failed[[2]string{rerr.ObjectName, rerr.VersionID}] = purge.DeleteError{
			Code:    resp.Code,
			Message: resp.Message,
		}
	}
	if callErr != nil {
		return nil, responseError("minio remove objects", callErr)
	}

	out := &purge.DeleteOutput{Deleted: make([]purge.ObjectVersionRef, 0, len(refs))}
	for _, ref := range refs {
		if de, ok := failed[[2]string{ref.Key, ref.VersionID}]; ok {
			de.Ref = ref
			out.Errors = append(out.Errors, de)
			continue
		}
		out.Deleted = append(out.Deleted, ref)
	}
	return out, nil
}

func responseError(op string, err error) error {
	if resp := minio.ToErrorResponse(err); resp.Code != "" {
		return fmt.Errorf("%s failed: %s: %s: %w", op, resp.Code, resp.Message, err)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

func splitEndpoint(endpoint string, useSSL bool) (string, bool, error) {
	if endpoint == "" {
		return "", false, fmt.Errorf("minio: endpoint is required")
	}
	if !strings.Contains(endpoint, "://") {
		return endpoint, useSSL, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("minio: parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		return u.Host, false, nil
	case "https":
		return u.Host, true, nil
	default:
		return "", false, fmt.Errorf("minio: unsupported endpoint scheme %q", u.Scheme)
	}
}
