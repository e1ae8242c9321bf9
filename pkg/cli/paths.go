package cli

import (
	"os"
	"path/filepath"
)

// DefaultConfigFile is the config file name inside the config directory.
const DefaultConfigFile = "config.yaml"

// Paths locates an app's per-user directories.
type Paths struct {
	// AppName is the directory name under the user config root.
	AppName string

	// ConfigRoot is the user config root, os.UserConfigDir by default.
	ConfigRoot string
}

// NewPaths returns the paths for appName under os.UserConfigDir.
func NewPaths(appName string) (*Paths, error) {
	root, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	return &Paths{AppName: appName, ConfigRoot: root}, nil
}

// AppDir returns <config root>/<app>.
func (p *Paths) AppDir() string {
	return filepath.Join(p.ConfigRoot, p.AppName)
}

// ConfigFile returns <config root>/<app>/config.yaml.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.AppDir(), DefaultConfigFile)
}

// DataDir returns <config root>/<app>/data, the default storage location.
func (p *Paths) DataDir() string {
	return filepath.Join(p.AppDir(), "data")
}

// EnsureAppDir creates the app directory if it doesn't exist.
func (p *Paths) EnsureAppDir() error {
	return os.MkdirAll(p.AppDir(), 0755)
}
