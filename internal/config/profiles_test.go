package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleProfiles = `
interval: 10m
folders:
  - name: vicell-bench-1
    adapter: vicell
    source: /mnt/vicell/inbox
    dest: /mnt/vicell/archive
  - name: cesds-lab-2
    adapter: cesds
    source: /mnt/cesds/inbox
    dest: /mnt/cesds/archive
overrides:
  cesds:
    exclude: [_ch2, _current, _blank]
`

func TestParseProfiles(t *testing.T) {
	p, err := ParseProfiles([]byte(sampleProfiles))
	if err != nil {
		t.Fatalf("ParseProfiles() error = %v", err)
	}

	if p.Interval != 10*time.Minute {
		t.Errorf("Interval = %v, want 10m", p.Interval)
	}
	if len(p.Folders) != 2 {
		t.Fatalf("len(Folders) = %d, want 2", len(p.Folders))
	}
	if p.Folders[1].Adapter != "cesds" || p.Folders[1].Dest != "/mnt/cesds/archive" {
		t.Errorf("Folders[1] = %+v", p.Folders[1])
	}

	o, ok := p.Overrides["cesds"]
	if !ok {
		t.Fatal("Overrides[cesds] missing")
	}
	if len(o.Exclude) != 3 || o.Exclude[2] != "_blank" {
		t.Errorf("Exclude = %v", o.Exclude)
	}
	if o.Extensions != nil {
		t.Errorf("Extensions = %v, want nil (keep registered)", o.Extensions)
	}
}

func TestParseProfiles_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"malformed", "folders: [", "parse profiles"},
		{"missing adapter", "folders:\n  - name: a\n    source: /in\n    dest: /out\n", "adapter is required"},
		{"same dirs", "folders:\n  - name: a\n    adapter: x\n    source: /in\n    dest: /in\n", "must differ"},
		{"duplicate name", "folders:\n  - {name: a, adapter: x, source: /a, dest: /b}\n  - {name: a, adapter: x, source: /c, dest: /d}\n", "duplicate name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProfiles([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ParseProfiles() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadProfiles(t *testing.T) {
	dir := t.TempDir()

	p, err := LoadProfiles(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadProfiles(missing) error = %v", err)
	}
	if len(p.Folders) != 0 {
		t.Errorf("len(Folders) = %d, want 0", len(p.Folders))
	}

	path := filepath.Join(dir, "profiles.yaml")
	if err := os.WriteFile(path, []byte(sampleProfiles), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err = LoadProfiles(path)
	if err != nil {
		t.Fatalf("LoadProfiles() error = %v", err)
	}
	if len(p.Folders) != 2 {
		t.Errorf("len(Folders) = %d, want 2", len(p.Folders))
	}
}
