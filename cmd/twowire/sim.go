package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/shiwa/twowire/pkg/eeprom"
	"github.com/shiwa/twowire/pkg/twi"
	"github.com/shiwa/twowire/pkg/wire"
	"github.com/spf13/cobra"
)

func newSimCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sim",
		Short: "Run master and slave flows on an in-memory bus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSim(cmd.OutOrStdout(), a.wireConfig())
		},
	}
}

// Адреса устройств на шине сценария
const (
	simEEPROM = 0x50
	simSensor = 0x68
	simStall  = 0x77
	simSlave  = 0x42
)

// runSim проходит сценарий: поиск, EEPROM, регистры с repeated start, таймаут и slave.
func runSim(w io.Writer, conf wire.Config) error {
	bus := twi.NewLoopback()
	bus.Attach(simEEPROM, twi.NewMemoryTarget(256, 1))
	bus.Attach(simSensor, twi.NewMemoryTarget(128, 1))
	bus.Attach(simStall, twi.NewMemoryTarget(1, 1))

	master := wire.New(conf, bus)
	if err := master.Begin(); err != nil {
		return err
	}
	defer master.End()

	fmt.Fprintf(w, "scan: % x\n", twi.Scan(master, 0x08, 0x77))

	eeConf := eeprom.Conf24C02
	eeConf.WriteDelay = 0
	ee, err := eeprom.New(master, simEEPROM, eeConf)
	if err != nil {
		return err
	}
	msg := []byte("hello from twowire")
	if _, err := ee.Write(msg); err != nil {
		return fmt.Errorf("eeprom write: %w", err)
	}
	ee.Seek(0, io.SeekStart)
	got := make([]byte, len(msg))
	if _, err := io.ReadFull(ee, got); err != nil {
		return fmt.Errorf("eeprom read: %w", err)
	}
	fmt.Fprintf(w, "eeprom: %q\n", got)

	if st := master.WriteRegister(simSensor, 0x3b, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}); st != wire.StatusSuccess {
		return fmt.Errorf("register write: %w", st.Err())
	}
	regs := make([]byte, 6)
	n := master.ReadRegister(simSensor, 0x3b, regs)
	fmt.Fprintf(w, "registers 0x3b: % x\n", regs[:n])

	master.BeginTransmission(0x21)
	fmt.Fprintf(w, "write 0x21: %v\n", master.EndTransmission())

	bus.Stall(simStall, true)
	master.SetWireTimeout(conf.Timeout, true)
	master.BeginTransmission(simStall)
	master.WriteByte(0x00)
	st := master.EndTransmission()
	fmt.Fprintf(w, "write %#02x: %v (timeout flag %v, bus resets %d)\n",
		simStall, st, master.WireTimeoutFlag(), bus.Resets())
	master.ClearWireTimeoutFlag()

	return runSimSlave(w, conf)
}

// runSimSlave играет роль внешнего мастера для контроллера в режиме slave.
func runSimSlave(w io.Writer, conf wire.Config) error {
	bus := twi.NewLoopback()
	slave := wire.New(conf, bus)

	var received []byte
	slave.OnReceive(func(n int) {
		received = make([]byte, n)
		slave.Read(received)
	})
	slave.OnRequest(func() {
		slave.Write([]byte("pong"))
	})
	if err := slave.BeginSlave(simSlave); err != nil {
		return err
	}
	defer slave.End()

	if !bus.MasterWrite([]byte("ping")) {
		return errors.New("slave did not acknowledge")
	}
	fmt.Fprintf(w, "slave %#02x received: %q\n", simSlave, received)
	fmt.Fprintf(w, "slave %#02x replied: %q\n", simSlave, bus.MasterRead(8))
	return nil
}
