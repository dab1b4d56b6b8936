package miniostore

import (
	"context"
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dev-tams/s3purge/internal/purge"
)

type fakeClient struct {
	objects   []minio.ObjectInfo
	listOpts  minio.ListObjectsOptions
	removed   []minio.ObjectInfo
	removeErr map[string]error
	single    []minio.RemoveObjectOptions

	// sent after the objects, the way minio-go reports a failed request
	requestErrs []minio.RemoveObjectError
}

func (f *fakeClient) ListObjects(_ context.Context, _ string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	f.listOpts = opts
	ch := make(chan minio.ObjectInfo, len(f.objects))
	for _, o := range f.objects {
		ch <- o
	}
	close(ch)
	return ch
}

func (f *fakeClient) RemoveObject(_ context.Context, _, _ string, opts minio.RemoveObjectOptions) error {
	f.single = append(f.single, opts)
	return nil
}

func (f *fakeClient) RemoveObjects(_ context.Context, _ string, objectsCh <-chan minio.ObjectInfo, _ minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError {
	errCh := make(chan minio.RemoveObjectError, 1000)
	for o := range objectsCh {
		f.removed = append(f.removed, o)
		if err, ok := f.removeErr[o.Key]; ok {
			errCh <- minio.RemoveObjectError{ObjectName: o.Key, VersionID: o.VersionID, Err: err}
		}
	}
	for _, rerr := range f.requestErrs {
		errCh <- rerr
	}
	close(errCh)
	return errCh
}

func TestListObjectVersionsSinglePage(t *testing.T) {
	fc := &fakeClient{objects: []minio.ObjectInfo{
		{Key: "a/error.txt", VersionID: "2", IsLatest: true},
		{Key: "a/error.txt", VersionID: "1"},
		{Key: "a/gone.txt", VersionID: "3", IsDeleteMarker: true, IsLatest: true},
	}}

	page, err := NewWithClient("lab", fc).ListObjectVersions(context.Background(), "bkt", "a/", nil)
	require.NoError(t, err)
	assert.True(t, fc.listOpts.WithVersions)
	assert.True(t, fc.listOpts.Recursive)
	assert.Equal(t, "a/", fc.listOpts.Prefix)
	assert.Len(t, page.Versions, 2)
	require.Len(t, page.DeleteMarkers, 1)
	assert.True(t, page.DeleteMarkers[0].DeleteMarker)
	assert.Nil(t, page.Next)
}

func TestListObjectVersionsSurfacesError(t *testing.T) {
	fc := &fakeClient{objects: []minio.ObjectInfo{
		{Err: minio.ErrorResponse{Code: "NoSuchBucket", Message: "The specified bucket does not exist"}},
	}}

	_, err := NewWithClient("lab", fc).ListObjectVersions(context.Background(), "missing", "a/", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NoSuchBucket")
}

func TestDeleteObjectsSplitsPerObjectErrors(t *testing.T) {
	fc := &fakeClient{removeErr: map[string]error{
		"a/2": minio.ErrorResponse{Code: "AccessDenied", Message: "Access Denied."},
	}}
	refs := []purge.ObjectVersionRef{
		{Key: "a/1", VersionID: "v1"},
		{Key: "a/2", VersionID: "v2"},
		{Key: "a/3", VersionID: "v3", DeleteMarker: true},
	}

	out, err := NewWithClient("lab", fc).DeleteObjects(context.Background(), "bkt", refs)
	require.NoError(t, err)
	require.Len(t, fc.removed, 3)
	assert.Equal(t, "v3", fc.removed[2].VersionID)
	assert.Equal(t, []purge.ObjectVersionRef{refs[0], refs[2]}, out.Deleted)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, refs[1], out.Errors[0].Ref)
	assert.Equal(t, "AccessDenied", out.Errors[0].Code)
}

func TestDeleteObjectsCallLevelError(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	fc := &fakeClient{removeErr: map[string]error{"a/1": boom}}

	_, err := NewWithClient("lab", fc).DeleteObjects(context.Background(), "bkt", []purge.ObjectVersionRef{{Key: "a/1", VersionID: "v1"}})
	assert.ErrorIs(t, err, boom)
}

func TestDeleteObjectsRequestErrorKeepsServerCode(t *testing.T) {
	refs := []purge.ObjectVersionRef{{Key: "a/1", VersionID: "v1"}, {Key: "a/2", VersionID: "v2"}}

	denied := minio.ErrorResponse{Code: "AccessDenied", Message: "Access Denied.", StatusCode: 403}
	fc := &fakeClient{requestErrs: []minio.RemoveObjectError{
		{Err: denied},
		{Err: errors.New("EOF")},
	}}
	out, err := NewWithClient("lab", fc).DeleteObjects(context.Background(), "bkt", refs)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "AccessDenied")
	assert.NotContains(t, err.Error(), "EOF")

	fc = &fakeClient{requestErrs: []minio.RemoveObjectError{{Err: denied}}}
	out, err = NewWithClient("lab", fc).DeleteObjects(context.Background(), "bkt", refs)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestDeleteObjectPassesVersion(t *testing.T) {
	fc := &fakeClient{}
	err := NewWithClient("lab", fc).DeleteObject(context.Background(), "bkt", purge.ObjectVersionRef{Key: "a/1", VersionID: "v9"})
	require.NoError(t, err)
	require.Len(t, fc.single, 1)
	assert.Equal(t, "v9", fc.single[0].VersionID)
}

func TestSplitEndpoint(t *testing.T) {
	cases := []struct {
		in     string
		ssl    bool
		host   string
		secure bool
	}{
		{"localhost:9000", false, "localhost:9000", false},
		{"localhost:9000", true, "localhost:9000", true},
		{"http://minio:9000", true, "minio:9000", false},
		{"https://play.min.io", false, "play.min.io", true},
	}
	for _, tc := range cases {
		host, secure, err := splitEndpoint(tc.in, tc.ssl)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.host, host)
		assert.Equal(t, tc.secure, secure)
	}

	_, _, err := splitEndpoint("", false)
	assert.Error(t, err)
	_, _, err = splitEndpoint("ftp://x", false)
	assert.Error(t, err)
}
