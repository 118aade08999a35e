package cli

import (
	"os"

	"wan24setup/internal/errors"
)

// createFile opens path for writing, truncating any existing file.
func createFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.NewFileError("create", path, err)
	}
	return f, nil
}

// openFile opens path for reading.
func openFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewFileError("open", path, err)
	}
	return f, nil
}
