package danzohttp

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/tanq16/danzo-http/internal/metrics"
)

// Merge concatenates paths, in the given order, into dest and returns dest. workDir, when
// set, is removed afterwards whether or not the merge succeeded; a failed merge also
// removes the partial dest.
func Merge(paths []string, dest, workDir string) (path string, err error) {
	if workDir != "" {
		defer os.RemoveAll(workDir)
	}
	start := time.Now()
	defer func() {
		if err == nil {
			metrics.MergeDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("error creating output directory: %w", err)
	}
	destFile, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("error creating output file: %w", err)
	}
	defer func() {
		if cerr := destFile.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("error closing output file: %w", cerr)
		}
		if err != nil {
			os.Remove(dest)
			path = ""
		}
	}()

	buffer := make([]byte, 1024*1024)
	for _, p := range paths {
		if err := appendFile(destFile, p, buffer); err != nil {
			return "", err
		}
	}
	if err := destFile.Sync(); err != nil {
		return "", fmt.Errorf("error syncing output file: %w", err)
	}
	return dest, nil
}

func appendFile(dst io.Writer, path string, buffer []byte) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening segment: %w", err)
	}
	defer src.Close()
	if _, err := io.CopyBuffer(dst, src, buffer); err != nil {
		return fmt.Errorf("error copying segment %s: %w", filepath.Base(path), err)
	}
	return nil
}
