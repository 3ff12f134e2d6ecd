package replica

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	dir, err := ioutil.TempDir("", "replica")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "replica.yml")
	raw := `name: arena42
address: "0.0.0.0:34000"
reckoning_interval: 0.25
auth:
  enabled: true
  db: storage/auth.sqlite
  name: player1
  password: hunter2
debug:
  packet_loss: 12.5
  duplicate: 3
  min_latency_ms: 40
  random_latency_ms: 80
`
	if err := ioutil.WriteFile(path, []byte(raw), 0666); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Name != "arena42" || cfg.Address != "0.0.0.0:34000" {
		t.Fatalf("identity block misparsed: %+v", cfg)
	}
	if cfg.ReckonInterval != 0.25 {
		t.Fatalf("reckoning_interval = %v", cfg.ReckonInterval)
	}
	if !cfg.Auth.Enabled || cfg.Auth.Name != "player1" || cfg.Auth.Password != "hunter2" {
		t.Fatalf("auth block misparsed: %+v", cfg.Auth)
	}
	if cfg.Debug.LossPct != 12.5 || cfg.Debug.DupPct != 3 || cfg.Debug.MinLatencyMs != 40 || cfg.Debug.RandLatencyMs != 80 {
		t.Fatalf("debug block misparsed: %+v", cfg.Debug)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir, err := ioutil.TempDir("", "replica")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "replica.yml")
	if err := ioutil.WriteFile(path, []byte("name: bare\n"), 0666); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Address != "0.0.0.0:33000" {
		t.Fatalf("default address = %q", cfg.Address)
	}
	if cfg.ReckonInterval != DefaultReckonInterval {
		t.Fatalf("default reckoning interval = %v", cfg.ReckonInterval)
	}
	if cfg.Auth.Enabled {
		t.Fatal("auth enabled by default")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("does/not/exist.yml"); err == nil {
		t.Fatal("missing configuration file must fail")
	}
}
