package main

import (
	"fmt"
	"strconv"

	"github.com/shiwa/twowire/pkg/wire"
	"github.com/spf13/cobra"
)

func newReadCmd(a *app) *cobra.Command {
	var (
		reg     string
		regSize int
		noStop  bool
	)
	cmd := &cobra.Command{
		Use:   "read <addr> <n>",
		Short: "Read up to 32 bytes, optionally from a register via repeated start",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddr(args[0])
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 0 {
				return fmt.Errorf("count %q: must be a non-negative number", args[1])
			}
			if n > wire.BufferLength {
				return fmt.Errorf("%d bytes: %w", n, wire.ErrDataTooLong)
			}

			r := wire.Request{Address: addr, Quantity: n, SendStop: !noStop}
			if reg != "" {
				v, err := strconv.ParseUint(reg, 0, 32)
				if err != nil {
					return fmt.Errorf("register %q: %w", reg, err)
				}
				r.InternalAddress = uint32(v)
				r.InternalAddressSize = regSize
			}

			c, err := a.begin()
			if err != nil {
				return err
			}
			defer c.End()

			got := c.Request(r)
			p := make([]byte, got)
			c.Read(p)
			fmt.Fprintf(cmd.OutOrStdout(), "% x\n", p)
			if got < n {
				return fmt.Errorf("read %d of %d bytes from %#02x", got, n, addr)
			}
			if c.WireTimeoutFlag() {
				return wire.ErrTimeout
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reg, "reg", "", "адрес регистра, передаётся перед чтением")
	cmd.Flags().IntVar(&regSize, "reg-size", 1, "длина адреса регистра в байтах (1..3)")
	cmd.Flags().BoolVar(&noStop, "no-stop", false, "не отпускать шину после чтения")
	return cmd
}

func newWriteCmd(a *app) *cobra.Command {
	var noStop bool
	cmd := &cobra.Command{
		Use:   "write <addr> <bytes...>",
		Short: "Write bytes in one transaction",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddr(args[0])
			if err != nil {
				return err
			}
			p, err := parseBytes(args[1:])
			if err != nil {
				return err
			}
			if len(p) > wire.BufferLength {
				return fmt.Errorf("%d bytes: %w", len(p), wire.ErrDataTooLong)
			}

			c, err := a.begin()
			if err != nil {
				return err
			}
			defer c.End()

			c.BeginTransmission(addr)
			c.Write(p)
			if st := c.EndTransmissionStop(!noStop); st != wire.StatusSuccess {
				return fmt.Errorf("write to %#02x: %w", addr, st.Err())
			}
			if !a.quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d byte(s) to %#02x\n", len(p), addr)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noStop, "no-stop", false, "не отпускать шину после записи")
	return cmd
}
