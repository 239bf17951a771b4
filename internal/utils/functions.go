package utils

import (
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var fileNameRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-\. ]+`)

func RenewOutputPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	index := 1
	for {
		outputPath = filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, index, ext))
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			return outputPath
		}
		index++
	}
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// FileNameFromDisposition extracts a sanitized file name from a Content-Disposition value.
// It returns "" when the header names nothing usable, so the caller can fall back to the URL.
func FileNameFromDisposition(contentDisposition string) string {
	if contentDisposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentDisposition)
	if err != nil {
		return ""
	}
	if fn, ok := params["filename"]; ok && fn != "" {
		return sanitizeFileName(fn)
	}
	if fn, ok := params["filename*"]; ok && strings.HasPrefix(strings.ToUpper(fn), "UTF-8''") {
		unescaped, err := url.PathUnescape(fn[len("UTF-8''"):])
		if err == nil {
			return sanitizeFileName(unescaped)
		}
	}
	return ""
}

// FileNameFromURL returns the last path element of rawURL, or "download".
func FileNameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	if name := sanitizeFileName(path.Base(parsed.Path)); name != "" {
		return name
	}
	return "download"
}

// sanitizeFileName keeps the base name and replaces unsafe characters. Names that would
// address a directory ("", ".", "..") come back empty.
func sanitizeFileName(name string) string {
	base := filepath.Base(name)
	switch strings.TrimSpace(base) {
	case "", ".", "..", string(filepath.Separator):
		return ""
	}
	return fileNameRegex.ReplaceAllString(base, "_")
}

// StableTransferID derives a working directory name that is identical across runs for the
// same link and output, so a restarted process finds the temp files of a previous one.
func StableTransferID(link, outputPath string) string {
	return TempDirPrefix + uuid.NewSHA1(uuid.NameSpaceURL, []byte(link+"\x00"+outputPath)).String()
}

// Clean removes leftover transfer working directories below dir and returns how many
// were removed.
func Clean(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), TempDirPrefix) {
			if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
