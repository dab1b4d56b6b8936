package s3store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dev-tams/s3purge/internal/purge"
)

// API is the subset of *s3.Client the backend calls.
type API interface {
	ListObjectVersions(ctx context.Context, params *s3.ListObjectVersionsInput, optFns ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

type Storage struct {
	name   string
	client API
}

type Options struct {
	Name   string
	Region string
	// Endpoint overrides the service URL for S3-compatible stores.
	Endpoint       string
	ForcePathStyle bool
	// AccessKey and SecretKey are optional; the default credential chain is
	// used when both are empty.
	AccessKey string
	SecretKey string
}

func New(ctx context.Context, opt Options) (*Storage, error) {
	if opt.Region == "" {
		return nil, fmt.Errorf("s3: region is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opt.Region),
	}
	if opt.AccessKey != "" || opt.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(opt.AccessKey, opt.SecretKey, "")
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(creds))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opt.ForcePathStyle
		if opt.Endpoint != "" {
			o.BaseEndpoint = aws.String(opt.Endpoint)
		}
	})

	return NewWithClient(opt.Name, client), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(name string, client API) *Storage {
	return &Storage{name: name, client: client}
}

func (s *Storage) Name() string {
	return s.name
}

func (s *Storage) ListObjectVersions(ctx context.Context, bucket, prefix string, cursor *purge.Cursor) (*purge.Page, error) {
	in := &s3.ListObjectVersionsInput{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(purge.MaxBatchSize),
	}
	if cursor != nil {
		if cursor.KeyMarker != "" {
			in.KeyMarker = aws.String(cursor.KeyMarker)
		}
		if cursor.VersionIDMarker != "" {
			in.VersionIdMarker = aws.String(cursor.VersionIDMarker)
		}
	}

	out, err := s.client.ListObjectVersions(ctx, in)
	if err != nil {
		return nil, apiError("s3 list object versions", err)
	}

	page := &purge.Page{
		Versions:      make([]purge.ObjectVersionRef, 0, len(out.Versions)),
		DeleteMarkers: make([]purge.ObjectVersionRef, 0, len(out.DeleteMarkers)),
	}
	for _, v := range out.Versions {
		page.Versions = append(page.Versions, purge.ObjectVersionRef{
			Key:       aws.ToString(v.Key),
			VersionID: aws.ToString(v.VersionId),
			IsLatest:  aws.ToBool(v.IsLatest),
		})
	}
	for _, m := range out.DeleteMarkers {
		page.DeleteMarkers = append(page.DeleteMarkers, purge.ObjectVersionRef{
			Key:          aws.ToString(m.Key),
			VersionID:    aws.ToString(m.VersionId),
			DeleteMarker: true,
			IsLatest:     aws.ToBool(m.IsLatest),
		})
	}

	if aws.ToBool(out.IsTruncated) {
		page.Next = &purge.Cursor{
			KeyMarker:       aws.ToString(out.NextKeyMarker),
			VersionIDMarker: aws.ToString(out.NextVersionIdMarker),
		}
	}
	return page, nil
}

func (s *Storage) DeleteObject(ctx context.Context, bucket string, ref purge.ObjectVersionRef) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket:    aws.String(bucket),
		Key:       aws.String(ref.Key),
		VersionId: versionID(ref.VersionID),
	})
	if err != nil {
		return apiError("s3 delete object", err)
	}
	return nil
}

func (s *Storage) DeleteObjects(ctx context.Context, bucket string, refs []purge.ObjectVersionRef) (*purge.DeleteOutput, error) {
	if len(refs) > purge.MaxBatchSize {
		return nil, fmt.Errorf("s3 delete objects: %d refs exceeds the limit of %d", len(refs), purge.MaxBatchSize)
	}
	if len(refs) == 0 {
		return &purge.DeleteOutput{}, nil
	}

	byID := make(map[[2]string]purge.ObjectVersionRef, len(refs))
	ids := make([]types.ObjectIdentifier, 0, len(refs))
	for _, ref := range refs {
		byID[[2]string{ref.Key, ref.VersionID}] = ref
		ids = append(ids, types.ObjectIdentifier{
			Key:       aws.String(ref.Key),
			VersionId: versionID(ref.VersionID),
		})
	}

	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{
			Objects: ids,
			Quiet:   aws.Bool(false),
		},
	})
	if err != nil {
		return nil, apiError("s3 delete objects", err)
	}

	res := &purge.DeleteOutput{
		Deleted: make([]purge.ObjectVersionRef, 0, len(out.Deleted)),
	}
	for _, d := range out.Deleted {
		res.Deleted = append(res.Deleted, lookup(byID, aws.ToString(d.Key), aws.ToString(d.VersionId)))
	}
	for _, e := range out.Errors {
		res.Errors = append(res.Errors, purge.DeleteError{
			Ref:     lookup(byID, aws.ToString(e.Key), aws.ToString(e.VersionId)),
			Code:    aws.ToString(e.Code),
			Message: aws.ToString(e.Message),
		})
	}
	return res, nil
}

// lookup restores the delete-marker flag, which the response does not echo.
func lookup(byID map[[2]string]purge.ObjectVersionRef, key, version string) purge.ObjectVersionRef {
	if ref, ok := byID[[2]string{key, version}]; ok {
		return ref
	}
	return purge.ObjectVersionRef{Key: key, VersionID: version}
}

// versionID omits an empty id so the request addresses the key alone.
func versionID(id string) *string {
	if id == "" {
		return nil
	}
	return aws.String(id)
}

func apiError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s failed: %s: %s: %w", op, apiErr.ErrorCode(), apiErr.ErrorMessage(), err)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}
