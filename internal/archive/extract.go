package archive

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"wan24setup/internal/compress"
	"wan24setup/internal/errors"
	"wan24setup/internal/log"
	"wan24setup/internal/stream"
	"wan24setup/internal/util"
)

// FolderMode is the POSIX mode used when recreating directories during
// extraction.
const FolderMode = 0o755

// FileMode is the POSIX mode used when creating extracted files.
const FileMode = 0o644

// ExtractOptions configures Extract.
type ExtractOptions struct {
	// TargetDir is the extraction root; every record path must resolve
	// inside it.
	TargetDir string

	Progress ProgressFunc
	Status   StatusFunc
	Cancel   CancelFunc
}

// Extract reads a compressed archive from src and writes its records under
// opts.TargetDir. It streams the decompressed body directly into the
// record parser — the archive is never buffered in full.
func Extract(src io.Reader, opts ExtractOptions) error {
	targetRoot, err := filepath.Abs(opts.TargetDir)
	if err != nil {
		return errors.NewFileError("resolve", opts.TargetDir, err)
	}
	if err := os.MkdirAll(targetRoot, FolderMode); err != nil {
		return errors.NewFileError("mkdir", targetRoot, err)
	}
	// Resolve symlinks so the prefix check below can't be defeated by a
	// target directory that is itself a symlink.
	if resolved, err := filepath.EvalSymlinks(targetRoot); err == nil {
		targetRoot = resolved
	}

	hdr, body, err := compress.NewReader(src)
	if err != nil {
		return err
	}
	_ = hdr

	sr := stream.NewReader(body)

	buf := util.GetMiBBuffer()
	defer util.PutMiBBuffer(buf)

	count := 0
	for {
		if opts.Cancel != nil && opts.Cancel() {
			return errors.ErrCancelled
		}

		relPath, err := sr.ReadNullableString(MaxPathLen)
		if err != nil {
			return err
		}
		if relPath == nil {
			break // null-path sentinel: end of stream
		}

		itemTypeByte, err := sr.ReadEnum(maxItemType)
		if err != nil {
			return err
		}
		itemType, err := validateItemType(itemTypeByte)
		if err != nil {
			return err
		}

		destPath, err := resolveSafe(targetRoot, *relPath)
		if err != nil {
			return err
		}

		switch itemType {
		case ItemFolder:
			if err := os.MkdirAll(destPath, FolderMode); err != nil {
				return errors.NewFileError("mkdir", destPath, err)
			}
		case ItemFile:
			length, err := sr.ReadInt64()
			if err != nil {
				return err
			}
			if err := extractFile(sr, destPath, length, buf); err != nil {
				return err
			}
		}

		count++
		if opts.Progress != nil {
			opts.Progress(0, destPath)
		}
	}

	log.Info("archive extracted", log.String("target", targetRoot), log.Int("records", count))
	return nil
}

// resolveSafe joins root with relPath and asserts the result is still
// rooted under root, rejecting any traversal attempt with ErrPathTraversal.
func resolveSafe(root, relPath string) (string, error) {
	if relPath == "" {
		return "", errors.NewValidationError("path", "empty record path")
	}
	if strings.HasPrefix(relPath, "/") || filepath.IsAbs(relPath) {
		return "", errors.ErrPathTraversal
	}
	for _, seg := range strings.Split(relPath, "/") {
		if seg == ".." {
			return "", errors.ErrPathTraversal
		}
	}

	joined := filepath.Join(root, filepath.FromSlash(relPath))
	resolvedRoot := root
	if !strings.HasSuffix(resolvedRoot, string(filepath.Separator)) {
		resolvedRoot += string(filepath.Separator)
	}
	if joined != root && !strings.HasPrefix(joined, resolvedRoot) {
		return "", errors.ErrPathTraversal
	}
	return joined, nil
}

func extractFile(r io.Reader, destPath string, length int64, buf []byte) error {
	if err := os.MkdirAll(filepath.Dir(destPath), FolderMode); err != nil {
		return errors.NewFileError("mkdir", filepath.Dir(destPath), err)
	}

	f, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, FileMode)
	if err != nil {
		return errors.NewFileError("create", destPath, err)
	}
	defer f.Close()

	if _, err := io.CopyBuffer(f, io.LimitReader(r, length), buf); err != nil {
		return errors.NewFileError("write", destPath, err)
	}
	return nil
}
