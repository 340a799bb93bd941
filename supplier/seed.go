package supplier

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/teranos/quotesearch/errors"
)

// Seed is a supplier directory file:
//
//	[settings]
//	results_per_site = 3
//
//	[[suppliers]]
//	name = "Loja Exemplo"
//	url = "https://loja.ao/"
//	market_scale = "local"
//	active = true
type Seed struct {
	Settings  *SystemDefaults `toml:"settings" yaml:"settings"`
	Suppliers []Supplier      `toml:"suppliers" yaml:"suppliers"`
}

// LoadSeed reads a .toml, .yaml or .yml seed file
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read seed file %s", path)
	}

	var seed Seed
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &seed); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &seed); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", path)
		}
	default:
		return nil, errors.WithHint(
			errors.Wrapf(errors.ErrInvalidRequest, "unsupported seed format %q", filepath.Ext(path)),
			"use a .toml or .yaml file")
	}
	return &seed, nil
}

// Import upserts every supplier in seed and replaces the settings row when
// the seed has one. Returns the number of suppliers written.
func (s *Store) Import(ctx context.Context, seed *Seed) (int, error) {
	if seed.Settings != nil {
		if err := s.UpdateSystemDefaults(ctx, *seed.Settings); err != nil {
			return 0, err
		}
	}

	written := 0
	for _, sup := range seed.Suppliers {
		if _, err := s.UpsertSupplier(ctx, sup); err != nil {
			return written, err
		}
		written++
	}

	s.logger.Infow("Imported suppliers", "count", written, "settings", seed.Settings != nil)
	return written, nil
}
