package app

import (
	"fmt"
	"io"

	"github.com/dev-tams/s3purge/internal/manifest"
)

// ShowManifest prints a manifest in the same layout as a purge report.
func ShowManifest(path, password string, out io.Writer) error {
	m, err := manifest.Read(path, password)
	if err != nil {
		return err
	}

	h := m.Header
	mode := "EXECUTION"
	if h.DryRun {
		mode = "DRY-RUN"
	}

	if h.Job != "" {
		fmt.Fprintf(out, "Job: %s\n", h.Job)
	}
	fmt.Fprintf(out, "Target: %s/%s\n", h.Bucket, h.Prefix)
	if h.Search != "" {
		fmt.Fprintf(out, "Search: %s\n", h.Search)
	}
	fmt.Fprintf(out, "Created: %s\n", h.Created.Format("2006-01-02 15:04:05Z07:00"))
	refs := m.Refs()
	fmt.Fprintf(out, "Objects (%s, %d):\n", mode, len(refs))
	for _, ref := range refs {
		if ref.DeleteMarker {
			fmt.Fprintf(out, "  Key: %s, VersionId: %s [delete marker]\n", ref.Key, ref.VersionID)
			continue
		}
		fmt.Fprintf(out, "  Key: %s, VersionId: %s\n", ref.Key, ref.VersionID)
	}
	return nil
}
