package backup

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// defaultObjectPrefix is the destination prefix used when a destination
// does not configure its own path
const defaultObjectPrefix = "backups/"

// sanitizeBackupID makes a backup ID safe for use as a path or object key
// segment, preventing directory traversal
func sanitizeBackupID(backupID string) string {
	sanitized := strings.ReplaceAll(backupID, "/", "_")
	sanitized = strings.ReplaceAll(sanitized, "\\", "_")
	sanitized = strings.ReplaceAll(sanitized, "..", "_")
	sanitized = strings.ReplaceAll(sanitized, " ", "_")
	return sanitized
}

// normalizeObjectPrefix ensures a non-empty prefix with a trailing slash
func normalizeObjectPrefix(prefix string) string {
	if prefix == "" {
		return defaultObjectPrefix
	}
	return strings.TrimSuffix(prefix, "/") + "/"
}

// artifactObject is one uploadable unit: directory artifacts expand into
// one object per contained file so every destination can store them
type artifactObject struct {
	// LocalPath is the file on disk
	LocalPath string
	// Name is the object name relative to the backup's destination prefix
	Name string
}

// expandArtifacts flattens an artifact list into per-file objects.
// Directory artifacts contribute one object per contained file named
// <artifact-base>/<relative-path>.
func expandArtifacts(files []string) ([]artifactObject, error) {
	var objects []artifactObject

	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return nil, NewStorageError(fmt.Sprintf("artifact %s is not readable", f), err)
		}

		if !info.IsDir() {
			objects = append(objects, artifactObject{LocalPath: f, Name: filepath.Base(f)})
			continue
		}

		base := filepath.Base(f)
		err = filepath.WalkDir(f, func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(f, p)
			if err != nil {
				return err
			}
			objects = append(objects, artifactObject{
				LocalPath: p,
				Name:      base + "/" + filepath.ToSlash(rel),
			})
			return nil
		})
		if err != nil {
			return nil, NewStorageError(fmt.Sprintf("failed to walk directory artifact %s", f), err)
		}
	}

	return objects, nil
}

// copyArtifactFile copies one file creating parent directories as needed
func copyArtifactFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// writeStreamToFile drains a reader into a new local file, creating parent
// directories as needed
func writeStreamToFile(r io.Reader, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
