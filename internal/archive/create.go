package archive

import (
	"fmt"
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

// Entry describes one filesystem item to pack: its absolute path and
// whether it is a directory.
type Entry struct {
	AbsPath string
	IsDir   bool
}

// CreateOptions configures Create.
type CreateOptions struct {
	// BasePath is the root directory every entry's AbsPath must be
	// prefixed by; it must end with a path separator.
	BasePath string
	Entries  []Entry
	// OutputPath is the final compressed archive's path.
	OutputPath string
	// TempDir, if set, overrides where the intermediate uncompressed
	// stream is staged. Defaults to os.TempDir().
	TempDir string

	Progress ProgressFunc
	// BytesProgress, if set, reports cumulative bytes written after each
	// entry completes, for callers that want throughput/ETA statistics
	// instead of (or alongside) the entry-count based Progress callback.
	BytesProgress BytesProgressFunc
	Status        StatusFunc
	Cancel        CancelFunc
}

// StatusFunc reports a short human-readable phase name.
type StatusFunc func(status string)

// Create packs opts.Entries into a framed record stream, then compresses
// that stream into opts.OutputPath via the Brotli envelope. It returns the
// uncompressed body length, matching the CLI's "last stdout line is the
// uncompressed byte length" contract.
//
// The two-pass design (temp file, then compress) exists so the
// uncompressed length is known before the envelope header is written.
func Create(opts CreateOptions) (uint64, error) {
	if !strings.HasSuffix(opts.BasePath, "/") && !strings.HasSuffix(opts.BasePath, string(filepath.Separator)) {
		return 0, errors.NewValidationError("base_path", "must end with a path separator")
	}

	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	tempFile, err := os.CreateTemp(tempDir, "wan24setup-archive-*.tmp")
	if err != nil {
		return 0, errors.NewFileError("create", tempDir, err)
	}
	tempPath := tempFile.Name()
	defer os.Remove(tempPath)

	if err := writeRecords(tempFile, opts); err != nil {
		tempFile.Close()
		return 0, err
	}

	uncompressedLen, err := tempFile.Seek(0, io.SeekCurrent)
	if err != nil {
		tempFile.Close()
		return 0, errors.NewFileError("seek", tempPath, err)
	}
	if err := tempFile.Close(); err != nil {
		return 0, errors.NewFileError("close", tempPath, err)
	}

	in, err := os.Open(tempPath)
	if err != nil {
		return 0, errors.NewFileError("open", tempPath, err)
	}
	defer in.Close()

	out, err := os.Create(opts.OutputPath)
	if err != nil {
		return 0, errors.NewFileError("create", opts.OutputPath, err)
	}

	cw, err := compress.NewWriter(out, uint64(uncompressedLen))
	if err != nil {
		out.Close()
		os.Remove(opts.OutputPath)
		return 0, err
	}

	buf := util.GetMiBBuffer()
	defer util.PutMiBBuffer(buf)

	if _, err := io.CopyBuffer(cw, in, buf); err != nil {
		cw.Close()
		out.Close()
		os.Remove(opts.OutputPath)
		return 0, errors.NewFileError("compress", opts.OutputPath, err)
	}
	if err := cw.Close(); err != nil {
		out.Close()
		os.Remove(opts.OutputPath)
		return 0, errors.NewFileError("close compressor", opts.OutputPath, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(opts.OutputPath)
		return 0, errors.NewFileError("close", opts.OutputPath, err)
	}

	log.Info("archive created", log.String("path", opts.OutputPath), log.Int64("uncompressed_bytes", uncompressedLen))
	return uint64(uncompressedLen), nil
}

func writeRecords(w io.Writer, opts CreateOptions) error {
	sw := stream.NewWriter(w)

	total := len(opts.Entries)
	var totalBytes, doneBytes int64
	if opts.BytesProgress != nil {
		var err error
		if totalBytes, err = sumEntrySizes(opts.Entries); err != nil {
			return err
		}
	}

	for i, entry := range opts.Entries {
		if opts.Cancel != nil && opts.Cancel() {
			return errors.ErrCancelled
		}
		if opts.Progress != nil {
			opts.Progress(float32(i)/float32(max(total, 1)), fmt.Sprintf("%d/%d", i+1, total))
		}

		written, err := writeEntry(sw, opts.BasePath, entry)
		if err != nil {
			return err
		}

		if opts.BytesProgress != nil {
			doneBytes += written
			opts.BytesProgress(doneBytes, totalBytes)
		}
	}

	// Null-path sentinel terminates the stream.
	return sw.WriteNullableString(nil)
}

// sumEntrySizes totals the on-disk size of every file entry, skipping
// directories, so BytesProgress can report a meaningful total up front.
func sumEntrySizes(entries []Entry) (int64, error) {
	var total int64
	for _, entry := range entries {
		if entry.IsDir {
			continue
		}
		info, err := os.Stat(entry.AbsPath)
		if err != nil {
			return 0, errors.NewFileError("stat", entry.AbsPath, err)
		}
		total += info.Size()
	}
	return total, nil
}

// writeEntry writes one entry's record and returns the number of file
// bytes it copied (0 for directories), for BytesProgress accounting.
func writeEntry(sw *stream.Writer, basePath string, entry Entry) (int64, error) {
	if !strings.HasPrefix(entry.AbsPath, basePath) {
		return 0, errors.NewValidationError("entry", fmt.Sprintf("%s is not under base path %s", entry.AbsPath, basePath))
	}
	relPath := filepath.ToSlash(strings.TrimPrefix(entry.AbsPath, basePath))

	if err := sw.WriteNullableString(&relPath); err != nil {
		return 0, err
	}

	if entry.IsDir {
		return 0, sw.WriteEnum(byte(ItemFolder), maxItemType)
	}

	if err := sw.WriteEnum(byte(ItemFile), maxItemType); err != nil {
		return 0, err
	}

	f, err := os.Open(entry.AbsPath)
	if err != nil {
		return 0, errors.NewFileError("open", entry.AbsPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, errors.NewFileError("stat", entry.AbsPath, err)
	}

	if err := sw.WriteInt64(info.Size()); err != nil {
		return 0, err
	}

	buf := util.GetMiBBuffer()
	defer util.PutMiBBuffer(buf)

	if _, err := io.CopyBuffer(sw, f, buf); err != nil {
		return 0, errors.NewFileError("read", entry.AbsPath, err)
	}
	return info.Size(), nil
}
