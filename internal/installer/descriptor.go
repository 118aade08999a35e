package installer

import (
	"encoding/json"
	"os"
	"path/filepath"

	"wan24setup/internal/errors"
)

// DescriptorFileName is the setup descriptor's filename, expected at the
// root of the extracted package directory.
const DescriptorFileName = "setup.json"

// Descriptor is the setup.json contract: what to run, whether the
// installer driver must exit before running it, and how to run it.
type Descriptor struct {
	Command                        string  `json:"Command"`
	Arguments                      *string `json:"Arguments"`
	ExitRequired                   bool    `json:"ExitRequired"`
	RequireAdministratorPrivileges bool    `json:"RequireAdministratorPrivileges"`
	HideWindow                     bool    `json:"HideWindow"`
}

// LoadDescriptor reads and parses setup.json from dir.
func LoadDescriptor(dir string) (*Descriptor, error) {
	path := filepath.Join(dir, DescriptorFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewFileError("read", path, err)
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errors.Wrap(err, "parse "+path)
	}
	if d.Command == "" {
		return nil, errors.NewValidationError("Command", "setup descriptor requires a non-empty Command")
	}
	return &d, nil
}

// Save writes the descriptor to dir/setup.json. Used by package builders
// and by tests constructing fixtures.
func (d *Descriptor) Save(dir string) error {
	path := filepath.Join(dir, DescriptorFileName)
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal setup descriptor")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.NewFileError("write", path, err)
	}
	return nil
}

// ArgumentsOrEmpty returns the descriptor's Arguments field, or "" if nil.
func (d *Descriptor) ArgumentsOrEmpty() string {
	if d.Arguments == nil {
		return ""
	}
	return *d.Arguments
}
