// Package copyop implements the copy helper (C7) a setup plugin uses to
// move its extracted payload into the final install location.
package copyop

import (
	"io"
	"os"
	"path/filepath"

	"wan24setup/internal/errors"
)

// DirMode is the directory permission bits applied when copyop creates a
// missing destination directory on POSIX platforms.
const DirMode = 0o755

// Entry is one file copied by Copy, reported so a caller can drive a
// progress bar off the destination path.
type Entry struct {
	SourcePath string
	DestPath   string
}

// ProgressFunc is invoked once per copied file, after the copy completes.
type ProgressFunc func(Entry)

// Options configures a Copy call.
type Options struct {
	// SrcDir is the directory walked recursively; defaults to the
	// current working directory if empty.
	SrcDir string
	// DestDir is the root the tree is copied into.
	DestDir string
	// SetupExeName is the filename of the running setup executable,
	// excluded from the copy (it has no business in the install dir).
	SetupExeName string
	// DescriptorName is the setup descriptor's filename (setup.json),
	// also excluded.
	DescriptorName string
	// ExtraExcludes holds caller-specified relative paths (relative to
	// SrcDir) to skip, e.g. a plugin's own config file.
	ExtraExcludes []string
	// Progress, if non-nil, is called once per file copied.
	Progress ProgressFunc
}

// Copy walks opts.SrcDir recursively and copies every file not excluded
// into opts.DestDir, preserving the relative directory structure.
// Destination files are overwritten if already present; missing
// destination directories are created with DirMode.
func Copy(opts Options) ([]Entry, error) {
	srcDir := opts.SrcDir
	if srcDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.NewFileError("getwd", "", err)
		}
		srcDir = wd
	}

	excluded := make(map[string]struct{}, len(opts.ExtraExcludes)+2)
	if opts.SetupExeName != "" {
		excluded[filepath.Clean(opts.SetupExeName)] = struct{}{}
	}
	if opts.DescriptorName != "" {
		excluded[filepath.Clean(opts.DescriptorName)] = struct{}{}
	}
	for _, p := range opts.ExtraExcludes {
		excluded[filepath.Clean(p)] = struct{}{}
	}

	var entries []Entry
	walkErr := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return errors.NewFileError("walk", path, err)
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return errors.NewFileError("rel", path, err)
		}
		rel = filepath.Clean(rel)
		if _, skip := excluded[rel]; skip {
			return nil
		}

		destPath := filepath.Join(opts.DestDir, rel)
		if err := copyFile(path, destPath, info.Mode()); err != nil {
			return err
		}

		e := Entry{SourcePath: path, DestPath: destPath}
		entries = append(entries, e)
		if opts.Progress != nil {
			opts.Progress(e)
		}
		return nil
	})
	if walkErr != nil {
		return entries, walkErr
	}

	return entries, nil
}

func copyFile(src, dest string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), DirMode); err != nil {
		return errors.NewFileError("mkdir", filepath.Dir(dest), err)
	}

	in, err := os.Open(src)
	if err != nil {
		return errors.NewFileError("open", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return errors.NewFileError("create", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.NewFileError("write", dest, err)
	}
	return nil
}
