package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Initialize writes the default configuration into the directory.
func Initialize(dir string, logger *log.Logger) (*Configuration, error) {
	return InitializeFs(afero.NewOsFs(), dir, logger)
}

// InitializeFs writes the default configuration into a directory in the
// filesystem. Existing configurations are left alone.
func InitializeFs(fs afero.Fs, dir string, logger *log.Logger) (*Configuration, error) {
	if err := fs.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	configPath := filepath.Join(dir, ConfigurationName)
	switch exists, err := afero.Exists(fs, configPath); {
	case err != nil:
		return nil, err
	case exists:
		return nil, fmt.Errorf("%s: %w", configPath, os.ErrExist)
	}

	logger.Printf("Writing %s\n", configPath)
	if err := afero.WriteFile(fs, configPath, defaultConfigData, 0600); err != nil {
		return nil, err
	}

	return LoadFs(fs, dir)
}
