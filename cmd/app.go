package cmd

import (
	"path/filepath"

	"github.com/joshuapassos/dbranch/internal/branch"
	"github.com/joshuapassos/dbranch/internal/config"
	"github.com/joshuapassos/dbranch/internal/docker"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const defaultConfigPath = "/etc/dbranch/config.json"

// configPath resolves DBRANCH_CONFIG / --config, defaulting to
// /etc/dbranch/config.json, per spec §4.7.
func configPath() string {
	if p := viper.GetString("config"); p != "" {
		return p
	}
	return defaultConfigPath
}

// openStore opens the config & metadata store against the real
// filesystem.
func openStore() (*config.Store, error) {
	return config.Open(afero.NewOsFs(), configPath())
}

// newManager builds the branch lifecycle manager (C8) over a live store
// and Docker client. The backing image lives alongside the config
// document, in the same directory.
func newManager(store *config.Store) (*branch.Manager, error) {
	orch, err := docker.New()
	if err != nil {
		return nil, err
	}
	projectRoot := filepath.Dir(store.Path())
	return branch.New(store, projectRoot, orch), nil
}
