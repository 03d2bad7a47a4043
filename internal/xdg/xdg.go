// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

// Package xdg locates KitchenSpark files under the XDG Base Directory layout.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const (
	appName        = "kitchenspark"
	configFileName = "config.yaml"
)

// ConfigDir returns $XDG_CONFIG_HOME/kitchenspark, falling back to
// ~/.config/kitchenspark.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", oops.Code("XDG_NO_HOME").With("operation", "resolve config dir").Wrap(err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName), nil
}

// DefaultConfigFile returns the path of config.yaml in ConfigDir when that
// file exists. ok is false when there is no such file.
func DefaultConfigFile() (path string, ok bool, err error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", false, err
	}
	path = filepath.Join(dir, configFileName)
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", false, nil
	case err != nil:
		return "", false, oops.Code("XDG_STAT_FAILED").With("path", path).Wrap(err)
	case info.IsDir():
		return "", false, oops.Code("XDG_STAT_FAILED").With("path", path).Errorf("%s is a directory", path)
	}
	return path, true, nil
}
