package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shiwa/twowire/internal/logger"
	"github.com/shiwa/twowire/pkg/wire"
	"github.com/spf13/cobra"
)

func newListenCmd(a *app) *cobra.Command {
	var address, reply string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Act as a slave device: log received data, answer reads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if address != "" {
				addr, err := parseAddr(address)
				if err != nil {
					return err
				}
				a.cfg.Slave.Address = addr
			}
			if reply != "" {
				a.cfg.Slave.Reply = reply
			}
			resp, err := parseHex(a.cfg.Slave.Reply)
			if err != nil {
				return fmt.Errorf("reply: %w", err)
			}

			c, err := a.open()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					logger.Info("получен сигнал %v, завершение...", sig)
					cancel()
				case <-ctx.Done():
				}
			}()

			return listen(ctx, c, a.cfg.Slave.Address, resp)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "собственный адрес slave (переопределяет config)")
	cmd.Flags().StringVar(&reply, "reply", "", "ответ на чтение в hex (переопределяет config)")
	return cmd
}

// listen занимает адрес addr и обслуживает внешнего мастера до отмены ctx.
func listen(ctx context.Context, c *wire.Controller, addr uint8, reply []byte) error {
	c.OnReceive(func(n int) {
		p := make([]byte, n)
		c.Read(p)
		logger.Info("получено %d байт: % x", n, p)
	})
	c.OnRequest(func() {
		if _, err := c.Write(reply); err != nil {
			logger.Error("ответ мастеру: %v", err)
		}
	})
	if err := c.BeginSlave(addr); err != nil {
		return err
	}
	defer c.End()

	logger.Info("slave на адресе %#02x", addr)
	<-ctx.Done()
	return nil
}
