package ingest

import (
	"io/fs"
	"path/filepath"

	"github.com/toltec-astro/tolteca-catalog/internal/filenameparser"
)

// ScannedFile pairs a matched file's absolute path with its parsed
// quartet/interface identity. Files whose name does not match the
// closed TolTEC naming grammar are silently excluded by Scan — not
// every file under root is raw observation data.
type ScannedFile struct {
	AbsPath string
	Parsed  *filenameparser.ParsedFilename
}

// Scan walks root (recursively if recursive is set) for files matching
// pattern (a filepath.Match glob applied to the base name), parses
// each matching name, and returns every file that parsed successfully
// in directory-walk order.
func Scan(root, pattern string, recursive bool) ([]ScannedFile, error) {
	var out []ScannedFile

	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		matched, err := filepath.Match(pattern, d.Name())
		if err != nil {
			return err
		}
		if !matched {
			return nil
		}
		parsed := filenameparser.ParseFilename(d.Name())
		if parsed == nil {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		out = append(out, ScannedFile{AbsPath: abs, Parsed: parsed})
		return nil
	}

	if err := filepath.WalkDir(root, walkFn); err != nil {
		return nil, err
	}
	return out, nil
}
