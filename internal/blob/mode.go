package blob

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// StorageMode selects which backend implements the Store interface.
type StorageMode string

const (
	StorageModeGCS         StorageMode = "gcs"
	StorageModeGCSEmulator StorageMode = "gcs_emulator"
	StorageModeLocal       StorageMode = "local"
)

type Config struct {
	Mode                  StorageMode
	EmulatorHost          string
	LocalRoot             string
	CompatibilityFallback bool
}

func IsSupportedMode(mode StorageMode) bool {
	switch mode {
	case StorageModeGCS, StorageModeGCSEmulator, StorageModeLocal:
		return true
	default:
		return false
	}
}

func IsEmulatorMode(mode StorageMode) bool {
	return mode == StorageModeGCSEmulator
}

func (cfg Config) IsEmulatorMode() bool {
	return IsEmulatorMode(cfg.Mode)
}

func (cfg Config) ModeSource() string {
	if cfg.CompatibilityFallback {
		return "compatibility_fallback"
	}
	return "explicit_or_default"
}

type ConfigErrorCode string

const (
	ConfigErrorInvalidMode         ConfigErrorCode = "invalid_mode"
	ConfigErrorMissingEmulatorHost ConfigErrorCode = "missing_emulator_host"
	ConfigErrorInvalidEmulatorHost ConfigErrorCode = "invalid_emulator_host"
	ConfigErrorMissingLocalRoot    ConfigErrorCode = "missing_local_root"
)

type ConfigError struct {
	Code         ConfigErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid object storage config"
	}
	switch e.Code {
	case ConfigErrorInvalidMode:
		return fmt.Sprintf(
			"invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q, %q)",
			e.Mode, StorageModeGCS, StorageModeGCSEmulator, StorageModeLocal,
		)
	case ConfigErrorMissingEmulatorHost:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST to be set", StorageModeGCSEmulator)
	case ConfigErrorInvalidEmulatorHost:
		return fmt.Sprintf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", e.EmulatorHost)
	case ConfigErrorMissingLocalRoot:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires BLOB_LOCAL_ROOT to be set", StorageModeLocal)
	default:
		return "invalid object storage config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ResolveConfigFromEnv mirrors the hub's layered config convention: an
// explicit OBJECT_STORAGE_MODE wins; absent that, a configured local root
// or emulator host implies the matching mode as a compatibility fallback;
// absent both, GCS is the default.
func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		EmulatorHost: strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")),
		LocalRoot:    strings.TrimSpace(os.Getenv("BLOB_LOCAL_ROOT")),
	}

	rawMode := strings.TrimSpace(os.Getenv("OBJECT_STORAGE_MODE"))
	mode := StorageMode(strings.ToLower(rawMode))

	switch mode {
	case "":
		switch {
		case cfg.LocalRoot != "":
			cfg.Mode = StorageModeLocal
			cfg.CompatibilityFallback = true
		case cfg.EmulatorHost != "":
			cfg.Mode = StorageModeGCSEmulator
			cfg.CompatibilityFallback = true
		default:
			cfg.Mode = StorageModeGCS
		}
	case StorageModeGCS, StorageModeGCSEmulator, StorageModeLocal:
		cfg.Mode = mode
	default:
		return cfg, &ConfigError{Code: ConfigErrorInvalidMode, Mode: rawMode}
	}

	if err := ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if !IsSupportedMode(cfg.Mode) {
		return &ConfigError{Code: ConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}
	switch cfg.Mode {
	case StorageModeGCSEmulator:
		if cfg.EmulatorHost == "" {
			return &ConfigError{Code: ConfigErrorMissingEmulatorHost, Mode: string(cfg.Mode)}
		}
		u, err := url.Parse(cfg.EmulatorHost)
		if err != nil || strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
			return &ConfigError{Code: ConfigErrorInvalidEmulatorHost, Mode: string(cfg.Mode), EmulatorHost: cfg.EmulatorHost, Cause: err}
		}
	case StorageModeLocal:
		if cfg.LocalRoot == "" {
			return &ConfigError{Code: ConfigErrorMissingLocalRoot, Mode: string(cfg.Mode)}
		}
	}
	return nil
}
