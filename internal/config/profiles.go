package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Profiles describes the instrument inboxes of one lab: which folders are
// watched and any per-adapter changes to the registered file filters.
//
//	interval: 10m
//	folders:
//	  - name: vicell-bench-1
//	    adapter: vicell
//	    source: /mnt/instruments/vicell/inbox
//	    dest: /mnt/instruments/vicell/archive
//	overrides:
//	  cesds:
//	    exclude: [_ch2, _current, _blank]
type Profiles struct {
	Interval  time.Duration             `yaml:"interval"`
	Folders   []FolderProfile           `yaml:"folders"`
	Overrides map[string]FilterOverride `yaml:"overrides"`
}

// FolderProfile is one watched inbox.
type FolderProfile struct {
	Name    string `yaml:"name"`
	Adapter string `yaml:"adapter"`
	Source  string `yaml:"source"`
	Dest    string `yaml:"dest"`
}

// FilterOverride replaces an adapter's extension and exclude lists.
// A nil list keeps the registered value.
type FilterOverride struct {
	Extensions []string `yaml:"extensions"`
	Exclude    []string `yaml:"exclude"`
}

// LoadProfiles reads and validates a profiles file. A missing file yields
// empty profiles so the server can run without watch folders.
func LoadProfiles(path string) (*Profiles, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Profiles{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return ParseProfiles(data)
}

// ParseProfiles decodes YAML profiles and validates them.
func ParseProfiles(data []byte) (*Profiles, error) {
	var p Profiles
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks every folder is complete and names are unique.
func (p *Profiles) Validate() error {
	var errs []string
	seen := make(map[string]bool, len(p.Folders))

	for i, f := range p.Folders {
		label := f.Name
		if label == "" {
			label = fmt.Sprintf("folders[%d]", i)
		}
		if seen[f.Name] && f.Name != "" {
			errs = append(errs, fmt.Sprintf("%s: duplicate name", label))
		}
		seen[f.Name] = true

		if strings.TrimSpace(f.Adapter) == "" {
			errs = append(errs, fmt.Sprintf("%s: adapter is required", label))
		}
		if strings.TrimSpace(f.Source) == "" {
			errs = append(errs, fmt.Sprintf("%s: source is required", label))
		}
		if strings.TrimSpace(f.Dest) == "" {
			errs = append(errs, fmt.Sprintf("%s: dest is required", label))
		}
		if f.Source != "" && f.Source == f.Dest {
			errs = append(errs, fmt.Sprintf("%s: source and dest must differ", label))
		}
	}
	if p.Interval < 0 {
		errs = append(errs, "interval must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid profiles:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
