// Package config loads the cmd/hivemindd configuration file. Configuration
// loading, interactive setup prompts, and CLI argument parsing are explicit
// external collaborators of the core engine (spec.md 1); this package is a
// thin, teacher-shaped TOML loader used only by the command entrypoint.
package config

import (
	"encoding/hex"
	"os"

	"github.com/BurntSushi/toml"

	"hivemind/crypto"
)

// Config is the cmd/hivemindd configuration shape: where the CAS persists
// its records on disk, the signer key hivemindd uses to produce
// "IPFS=<multihash>" signatures on the caller's behalf, and a
// not-yet-implemented RPC listen address reserved for a future façade that
// spec.md's Non-goals keep out of the core engine.
type Config struct {
	DataDir       string `toml:"DataDir"`
	ListenAddress string `toml:"ListenAddress"`
	SignerKey     string `toml:"SignerKey"`
}

// Load reads cfg from path, creating a default configuration (with a freshly
// generated signer key) if the file does not yet exist.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if cfg.SignerKey == "" {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		cfg.SignerKey = hex.EncodeToString(key.Bytes())

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, os.ModePerm)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if err := toml.NewEncoder(f).Encode(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// createDefault writes and returns a default configuration file at path.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:       "./hivemind-data",
		ListenAddress: ":6001",
		SignerKey:     hex.EncodeToString(key.Bytes()),
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
