// ABOUTME: Per-user profile file persisted between runs
// ABOUTME: Holds backend address, cached email, and the local signing secret

package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// profile is the ~/.scpnet/profile.toml contents. The local secret signs
// session tokens when no backend is configured; it is generated once and
// must stay stable or cached sessions die on every restart.
type profile struct {
	BackendURL  string `toml:"backend_url"`
	AnonKey     string `toml:"anon_key"`
	Email       string `toml:"email"`
	LocalSecret string `toml:"local_secret"`
}

func profilePath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profile.toml"), nil
}

// loadProfile reads the profile, creating one with a fresh local secret on
// first run.
func loadProfile() (*profile, error) {
	path, err := profilePath()
	if err != nil {
		return nil, err
	}

	var p profile
	if _, err := toml.DecodeFile(path, &p); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading profile: %w", err)
		}
	}

	if p.LocalSecret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generating local secret: %w", err)
		}
		p.LocalSecret = hex.EncodeToString(buf)
		if err := saveProfile(&p); err != nil {
			return nil, err
		}
	}

	return &p, nil
}

func saveProfile(p *profile) error {
	path, err := profilePath()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("writing profile: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(p); err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	return nil
}
