package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "twowire.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
bus:
  driver: i2cdev
  device: /dev/i2c-3
  clock: 400000
  timeout: 10ms
  reset_on_timeout: true
slave:
  address: 0x30
  reply: "de ad"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Bus.Driver != "i2cdev" || c.Bus.Device != "/dev/i2c-3" || c.Bus.Clock != 400000 {
		t.Errorf("bus = %+v", c.Bus)
	}
	if !c.Bus.ResetOnTimeout || c.Bus.TimeoutDuration() != 10*time.Millisecond {
		t.Errorf("timeout = %q reset=%v", c.Bus.Timeout, c.Bus.ResetOnTimeout)
	}
	if c.Slave.Address != 0x30 || c.Slave.Reply != "de ad" {
		t.Errorf("slave = %+v", c.Slave)
	}
	// не заданные значения берутся по умолчанию
	if c.Bridge.Baud != 115200 || c.Log.Level != "info" {
		t.Errorf("defaults not applied: %+v %+v", c.Bridge, c.Log)
	}
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d := Default()
	if c.Bus != d.Bus {
		t.Errorf("bus = %+v, want %+v", c.Bus, d.Bus)
	}
	if c.Log.Level != "debug" {
		t.Errorf("level = %q", c.Log.Level)
	}
	if got := c.Bus.TimeoutDuration(); got != 25*time.Millisecond {
		t.Errorf("timeout = %v", got)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"driver", "bus:\n  driver: spi\n", "unknown bus driver"},
		{"address", "slave:\n  address: 0x90\n", "7-bit"},
		{"timeout", "bus:\n  timeout: soon\n", "bus timeout"},
		{"yaml", "bus: [\n", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load err = %v, want %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("missing file: no error")
	}
}

func TestTimeoutDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 25 * time.Millisecond},
		{"0", 0},
		{"1s", time.Second},
		{"bogus", 25 * time.Millisecond},
	}
	for _, tt := range tests {
		b := BusConfig{Timeout: tt.in}
		if got := b.TimeoutDuration(); got != tt.want {
			t.Errorf("TimeoutDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
