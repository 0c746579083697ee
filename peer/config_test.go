package peer_test

import (
	"testing"
	"time"

	"github.com/diameter-go/diameter/peer"
)

func TestConfigValidFillsDefaults(t *testing.T) {
	var cfg peer.Config
	if err := cfg.Valid(); err != nil {
		t.Fatalf("Valid: %v", err)
	}
	want := peer.DefaultConfig()
	if cfg.CeaTimeout != want.CeaTimeout {
		t.Errorf("CeaTimeout = %s, want %s", cfg.CeaTimeout, want.CeaTimeout)
	}
	if cfg.DwaTimeout != want.DwaTimeout {
		t.Errorf("DwaTimeout = %s, want %s", cfg.DwaTimeout, want.DwaTimeout)
	}
	if cfg.RequestTimeout != want.RequestTimeout {
		t.Errorf("RequestTimeout = %s, want %s", cfg.RequestTimeout, want.RequestTimeout)
	}
	if cfg.IdleTimeout != 0 {
		t.Errorf("IdleTimeout = %s, want 0 (zero left untouched)", cfg.IdleTimeout)
	}
}

// TestConfigValidAllowsZeroIdleTimeout exercises spec §8 scenario 6,
// which deliberately sets IdleTimeout to 0 to force a watchdog on every
// tick rather than treating it as "unset".
func TestConfigValidAllowsZeroIdleTimeout(t *testing.T) {
	cfg := peer.Config{IdleTimeout: 0, CeaTimeout: time.Second, DwaTimeout: time.Second, RequestTimeout: time.Second}
	if err := cfg.Valid(); err != nil {
		t.Fatalf("Valid: %v", err)
	}
	if cfg.IdleTimeout != 0 {
		t.Errorf("IdleTimeout = %s, want 0", cfg.IdleTimeout)
	}
}

func TestConfigValidRejectsOutOfRange(t *testing.T) {
	cases := []peer.Config{
		{CeaTimeout: peer.CeaTimeoutMax + time.Second},
		{DwaTimeout: peer.DwaTimeoutMax + time.Second},
		{RequestTimeout: peer.RequestTimeoutMax + time.Second},
		{IdleTimeout: peer.IdleTimeoutMax + time.Second},
		{IdleTimeout: -time.Second},
	}
	for i, cfg := range cases {
		if err := cfg.Valid(); err == nil {
			t.Errorf("case %d: expected an error, got nil", i)
		}
	}
}

func TestConfigValidRejectsNil(t *testing.T) {
	var cfg *peer.Config
	if err := cfg.Valid(); err == nil {
		t.Fatal("expected an error for a nil config")
	}
}
