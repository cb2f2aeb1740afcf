// Package vendors loads and validates per-vendor ingestion profiles.
package vendors

import (
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoVendors indicates no vendors were found in the configuration.
	ErrNoVendors = errors.New("no vendors found in configuration")
	// ErrUnknownVendor indicates a requested vendor is not configured.
	ErrUnknownVendor = errors.New("unknown vendor")
)

// vendorsFile represents the structure of a vendors YAML file.
type vendorsFile struct {
	Vendors []map[string]any `yaml:"vendors"`
}

// Defaults applied to every profile before decoding, so absent keys
// keep these values and present keys override them.
func defaultProfile() Profile {
	return Profile{
		Enabled: true,
		ErrorHandling: ErrorHandling{
			RetryOnFailure: true,
			MaxRetries:     3,
		},
	}
}

// Load reads, decodes and validates all vendor profiles from path.
func Load(path string) ([]*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vendors file: %w", err)
	}

	var file vendorsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse vendors file: %w", err)
	}
	if len(file.Vendors) == 0 {
		return nil, ErrNoVendors
	}

	profiles := make([]*Profile, 0, len(file.Vendors))
	seen := make(map[string]struct{}, len(file.Vendors))
	for i, raw := range file.Vendors {
		p := defaultProfile()
		if err := decodeProfile(raw, &p); err != nil {
			return nil, fmt.Errorf("vendor %d: %w", i, err)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[p.Name]; dup {
			return nil, &ConfigError{Vendor: p.Name, Field: "name", Msg: "duplicate vendor name"}
		}
		seen[p.Name] = struct{}{}
		profiles = append(profiles, &p)
	}
	return profiles, nil
}

// Select returns the profiles matching the requested names, in request
// order. With no names it returns every enabled profile; naming a
// vendor explicitly selects it even when disabled.
func Select(profiles []*Profile, names []string) ([]*Profile, error) {
	if len(names) == 0 {
		out := make([]*Profile, 0, len(profiles))
		for _, p := range profiles {
			if p.Enabled {
				out = append(out, p)
			}
		}
		return out, nil
	}
	byName := make(map[string]*Profile, len(profiles))
	for _, p := range profiles {
		byName[p.Name] = p
	}
	out := make([]*Profile, 0, len(names))
	for _, n := range names {
		p, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownVendor, n)
		}
		out = append(out, p)
	}
	return out, nil
}

func decodeProfile(raw map[string]any, out *Profile) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decode profile: %w", err)
	}
	return nil
}
