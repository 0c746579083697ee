package config

import (
	"testing"

	"github.com/spf13/afero"
)

func writeConfig(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/etc/diameterd.yaml", `
node:
  origin_host: dra2.gy.mno.net
  origin_realm: mno.net
`)
	cfg, err := Load(fs, "/etc/diameterd.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen.Port != 3868 {
		t.Errorf("Listen.Port = %d, want 3868", cfg.Listen.Port)
	}
	if cfg.Listen.Idle == 0 {
		t.Error("expected a default idle timeout")
	}
}

func TestLoadRejectsMissingOriginHost(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/etc/diameterd.yaml", `
node:
  origin_realm: mno.net
`)
	if _, err := Load(fs, "/etc/diameterd.yaml"); err == nil {
		t.Fatal("expected validation error for missing origin_host")
	}
}

func TestLoadRejectsPeerWithoutAddresses(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/etc/diameterd.yaml", `
node:
  origin_host: dra2.gy.mno.net
  origin_realm: mno.net
peers:
  - host_identity: dra1.gy.mno.net
    realm: mno.net
    transport: tcp
    port: 3868
`)
	if _, err := Load(fs, "/etc/diameterd.yaml"); err == nil {
		t.Fatal("expected validation error for peer with no addresses")
	}
}
