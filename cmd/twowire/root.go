package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/shiwa/twowire/internal/config"
	"github.com/shiwa/twowire/internal/logger"
	"github.com/shiwa/twowire/pkg/twi"
	"github.com/shiwa/twowire/pkg/wire"
	"github.com/spf13/cobra"
)

// app — флаги и конфиг, общие для всех команд.
type app struct {
	configPath string
	driver     string
	device     string
	quiet      bool
	debug      bool

	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "twowire",
		Short:         "I2C bus tool: scan, read, write, slave mode",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "путь к YAML конфигу (по умолчанию twowire.yml)")
	root.PersistentFlags().StringVar(&a.driver, "driver", "", "драйвер шины: periph, i2cdev, bridge, loopback (переопределяет config)")
	root.PersistentFlags().StringVar(&a.device, "device", "", "шина, /dev/i2c-N или порт моста (переопределяет config)")
	root.PersistentFlags().BoolVar(&a.quiet, "quiet", false, "меньше вывода")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "отладочный вывод")

	root.AddCommand(
		newScanCmd(a),
		newReadCmd(a),
		newWriteCmd(a),
		newListenCmd(a),
		newPortsCmd(a),
		newSimCmd(a),
	)
	return root
}

// setup загружает конфиг, применяет флаги и настраивает логи.
func (a *app) setup() error {
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if a.driver != "" {
		cfg.Bus.Driver = a.driver
	}
	if a.device != "" {
		cfg.Bus.Device = a.device
	}
	a.cfg = cfg

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("log level %q: %w", cfg.Log.Level, err)
	}
	if a.debug {
		level = slog.LevelDebug
	}
	logger.Quiet = a.quiet
	a.log = logger.Setup(os.Stderr, level)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat("twowire.yml"); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load("twowire.yml")
}

// open создаёт контроллер по конфигу; Begin вызывает команда.
func (a *app) open() (*wire.Controller, error) {
	tr, err := twi.Open(twi.Options{
		Driver: a.cfg.Bus.Driver,
		Device: a.cfg.Bus.Device,
		Baud:   a.cfg.Bridge.Baud,
		Logger: a.log,
	})
	if err != nil {
		return nil, err
	}
	return wire.New(a.wireConfig(), tr), nil
}

func (a *app) wireConfig() wire.Config {
	return wire.Config{
		Clock:          a.cfg.Bus.Clock,
		Timeout:        a.cfg.Bus.TimeoutDuration(),
		ResetOnTimeout: a.cfg.Bus.ResetOnTimeout,
		Logger:         a.log.With("component", "wire"),
	}
}

// begin открывает контроллер в роли мастера.
func (a *app) begin() (*wire.Controller, error) {
	c, err := a.open()
	if err != nil {
		return nil, err
	}
	if err := c.Begin(); err != nil {
		return nil, err
	}
	return c, nil
}
