// Package manifest records the candidate set of a purge run as JSON lines:
// one header line, then one line per object version. Files may be gzip
// compressed and AES-GCM encrypted; Decode detects both.
package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dev-tams/s3purge/internal/compression"
	"github.com/dev-tams/s3purge/internal/encryption"
	"github.com/dev-tams/s3purge/internal/purge"
)

// ErrPasswordRequired is returned when decoding an encrypted manifest
// without a password.
var ErrPasswordRequired = errors.New("manifest is encrypted; password required")

type Header struct {
	Job     string    `json:"job,omitempty"`
	Bucket  string    `json:"bucket"`
	Prefix  string    `json:"prefix"`
	Search  string    `json:"search,omitempty"`
	DryRun  bool      `json:"dry_run"`
	Count   int       `json:"count"`
	Created time.Time `json:"created"`
}

type Entry struct {
	Key          string `json:"key"`
	VersionID    string `json:"version_id"`
	DeleteMarker bool   `json:"delete_marker,omitempty"`
}

type Manifest struct {
	Header  Header
	Entries []Entry
}

type Options struct {
	Compress bool
	// Password enables encryption when set.
	Password string
}

// HeaderFor builds the header describing req.
func HeaderFor(job string, req purge.Request, count int) Header {
	return Header{
		Job:     job,
		Bucket:  req.Bucket,
		Prefix:  req.Prefix,
		Search:  req.Search,
		DryRun:  req.DryRun,
		Count:   count,
		Created: time.Now().UTC(),
	}
}

// Encode writes the manifest to dst through the configured pipeline.
func Encode(dst io.Writer, h Header, refs purge.CandidateSet, opt Options) error {
	h.Count = len(refs)

	var closers closeStack
	defer closers.closeAll()

	src := jsonLinesReader(h, refs, &closers)
	if opt.Compress {
		src = gzipReader(src, &closers)
	}
	if opt.Password != "" {
		src = encryptReader(src, opt.Password, &closers)
	}

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Write encodes the manifest into path. The file is written under a
// temporary name and renamed, so readers never see a partial manifest.
func Write(path string, h Header, refs purge.CandidateSet, opt Options) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create manifest temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := Encode(tmp, h, refs, opt); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// Read opens and decodes the manifest at path.
func Read(path, password string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	return Decode(f, password)
}

// Decode reverses Encode, detecting encryption and compression from the
// stream headers.
func Decode(r io.Reader, password string) (*Manifest, error) {
	var closers closeStack
	defer closers.closeAll()

	br := bufio.NewReader(r)
	var src io.Reader = br
	if hasPrefix(br, encryption.Magic) {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		src = decryptReader(br, password, &closers)
	}

	br = bufio.NewReader(src)
	src = br
	if hasPrefix(br, compression.Magic) {
		src = gunzipReader(br, &closers)
	}

	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read manifest header: %w", err)
		}
		return nil, fmt.Errorf("read manifest header: empty manifest")
	}

	m := &Manifest{}
	if err := json.Unmarshal(sc.Bytes(), &m.Header); err != nil {
		return nil, fmt.Errorf("decode manifest header: %w", err)
	}
	m.Entries = make([]Entry, 0, m.Header.Count)

	for line := 2; sc.Scan(); line++ {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("decode manifest line %d: %w", line, err)
		}
		m.Entries = append(m.Entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if len(m.Entries) != m.Header.Count {
		return nil, fmt.Errorf("manifest truncated: header counts %d entries, found %d", m.Header.Count, len(m.Entries))
	}
	return m, nil
}

// Refs converts the entries back into purge refs.
func (m *Manifest) Refs() purge.CandidateSet {
	out := make(purge.CandidateSet, 0, len(m.Entries))
	for _, e := range m.Entries {
		out = append(out, purge.ObjectVersionRef{Key: e.Key, VersionID: e.VersionID, DeleteMarker: e.DeleteMarker})
	}
	return out
}

func hasPrefix(br *bufio.Reader, magic []byte) bool {
	got, _ := br.Peek(len(magic))
	return bytes.Equal(got, magic)
}

func jsonLinesReader(h Header, refs purge.CandidateSet, closers *closeStack) io.Reader {
	pr, pw := io.Pipe()
	closers.add(pr)

	go func() {
		bw := bufio.NewWriter(pw)
		enc := json.NewEncoder(bw)
		err := enc.Encode(h)
		for _, ref := range refs {
			if err != nil {
				break
			}
			err = enc.Encode(Entry{Key: ref.Key, VersionID: ref.VersionID, DeleteMarker: ref.DeleteMarker})
		}
		if err == nil {
			err = bw.Flush()
		}
		_ = pw.CloseWithError(err)
	}()
	return pr
}
