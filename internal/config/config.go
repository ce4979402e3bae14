package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config — конфигурация twowire
type Config struct {
	Bus    BusConfig    `yaml:"bus"`
	Slave  SlaveConfig  `yaml:"slave"`
	Bridge BridgeConfig `yaml:"bridge"`
	Log    LogConfig    `yaml:"log"`
}

// BusConfig — драйвер шины и параметры мастера
type BusConfig struct {
	Driver         string `yaml:"driver"`  // periph, i2cdev, bridge, loopback
	Device         string `yaml:"device"`  // имя шины periph, /dev/i2c-N или порт моста
	Clock          uint32 `yaml:"clock"`   // Гц
	Timeout        string `yaml:"timeout"` // например "25ms"; "0" отключает таймаут
	ResetOnTimeout bool   `yaml:"reset_on_timeout"`
}

// SlaveConfig — собственный адрес и ответ для режима slave (команда listen)
type SlaveConfig struct {
	Address uint8  `yaml:"address"`
	Reply   string `yaml:"reply"` // байты ответа в hex, например "de ad be ef"
}

// BridgeConfig — последовательный порт моста
type BridgeConfig struct {
	Baud int `yaml:"baud"`
}

// LogConfig — уровень логов: debug, info, warn, error
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default возвращает конфиг по умолчанию
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			Driver:  "periph",
			Clock:   100000,
			Timeout: "25ms",
		},
		Slave: SlaveConfig{
			Address: 0x42,
		},
		Bridge: BridgeConfig{
			Baud: 115200,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load читает конфиг из YAML
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate проверяет значения, которые нельзя исправить подстановкой по умолчанию.
func (c *Config) Validate() error {
	switch c.Bus.Driver {
	case "periph", "i2cdev", "bridge", "loopback":
	default:
		return fmt.Errorf("config: unknown bus driver %q", c.Bus.Driver)
	}
	if c.Slave.Address > 0x7f {
		return fmt.Errorf("config: slave address %#x out of 7-bit range", c.Slave.Address)
	}
	if _, err := time.ParseDuration(c.Bus.Timeout); err != nil {
		return fmt.Errorf("config: bus timeout: %w", err)
	}
	return nil
}

// TimeoutDuration возвращает таймаут шины; для пустого значения берётся значение по умолчанию.
func (b *BusConfig) TimeoutDuration() time.Duration {
	return parseDuration(b.Timeout, 25*time.Millisecond)
}

func applyDefaults(c *Config) {
	d := Default()
	if c.Bus.Driver == "" {
		c.Bus.Driver = d.Bus.Driver
	}
	if c.Bus.Clock == 0 {
		c.Bus.Clock = d.Bus.Clock
	}
	if c.Bus.Timeout == "" {
		c.Bus.Timeout = d.Bus.Timeout
	}
	if c.Slave.Address == 0 {
		c.Slave.Address = d.Slave.Address
	}
	if c.Bridge.Baud == 0 {
		c.Bridge.Baud = d.Bridge.Baud
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
