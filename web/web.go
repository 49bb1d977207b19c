// Package web holds the browser log viewer served from the frontend's web
// root.
//
// The files under static/ are embedded at compile time so a deployment can
// write them out with [Extract] (or "tailgate export-web") instead of
// shipping them separately. The frontend itself always serves from a
// directory on disk.
package web

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Assets is the embedded viewer:
//
//	static/init/
//	  init.htm  - page loaded at the default document path
//	  log.js    - EventSource client for /api/log/stream
//	  log.css   - segment format colors
//
//go:embed static
var Assets embed.FS

// Extract writes the embedded assets under dir, creating directories as
// needed. Existing files are left alone unless overwrite is set. It returns
// the paths written.
func Extract(dir string, overwrite bool) ([]string, error) {
	var written []string
	err := fs.WalkDir(Assets, "static", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		target := filepath.Join(dir, filepath.FromSlash(name))
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		if !overwrite {
			if _, err := os.Stat(target); err == nil {
				return nil
			}
		}

		data, err := Assets.ReadFile(name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", target, err)
		}
		written = append(written, target)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return written, nil
}
