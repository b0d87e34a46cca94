package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const crashContextPrefix = "crashcontext-"

var validate = validator.New()

// Load reads path as an INI-style key-group file, overlaying it onto
// Default(), then validates the result. A missing file is not an error:
// Load returns the unmodified defaults, matching the teacher's
// MustLoad/Load split without the separate friendlier-error variant,
// since the manager's CLI (-c) always has a single, unambiguous path to
// try.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if v.IsSet("common") {
		if err := v.Sub("common").Unmarshal(&cfg.Common); err != nil {
			return nil, fmt.Errorf("config: parsing [common]: %w", err)
		}
	}
	if v.IsSet("crashhandler") {
		if err := v.Sub("crashhandler").Unmarshal(&cfg.CrashHandler); err != nil {
			return nil, fmt.Errorf("config: parsing [crashhandler]: %w", err)
		}
	}
	if v.IsSet("crashmanager") {
		if err := v.Sub("crashmanager").Unmarshal(&cfg.CrashManager); err != nil {
			return nil, fmt.Errorf("config: parsing [crashmanager]: %w", err)
		}
	}
	if v.IsSet("transfer") {
		if err := v.Sub("transfer").Unmarshal(&cfg.Transfer); err != nil {
			return nil, fmt.Errorf("config: parsing [transfer]: %w", err)
		}
	}
	if v.IsSet("logging") {
		if err := v.Sub("logging").Unmarshal(&cfg.Logging); err != nil {
			return nil, fmt.Errorf("config: parsing [logging]: %w", err)
		}
	}
	if v.IsSet("metrics") {
		if err := v.Sub("metrics").Unmarshal(&cfg.Metrics); err != nil {
			return nil, fmt.Errorf("config: parsing [metrics]: %w", err)
		}
	}

	for key := range v.AllSettings() {
		if !strings.HasPrefix(key, crashContextPrefix) {
			continue
		}
		var cc CrashContext
		if err := v.Sub(key).Unmarshal(&cc); err != nil {
			return nil, fmt.Errorf("config: parsing [%s]: %w", key, err)
		}
		cc.Name = strings.TrimPrefix(key, crashContextPrefix)
		cfg.CrashContexts = append(cfg.CrashContexts, cc)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// SocketPath returns the full path of the handler<->manager IPC socket.
func (c Common) SocketPath() string {
	return filepath.Join(c.RunDirectory, c.IpcSocketFile)
}
