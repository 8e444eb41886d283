// Package blob provides governance.BlobSink implementations for export
// artifacts: a local filesystem sink and an S3 sink.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
)

// ExportPath returns the artifact path of an export job. Reruns of the
// same job write to the same path.
func ExportPath(engagementID, jobID string) string {
	return path.Join("exports", engagementID, jobID+".json")
}

// Checksum returns the "sha256:<hex>" digest of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// cleanKey validates a sink-relative path.
func cleanKey(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	cleaned := path.Clean(strings.TrimPrefix(p, "/"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("path %q escapes the sink root", p)
	}
	return cleaned, nil
}
