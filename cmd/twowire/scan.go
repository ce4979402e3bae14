package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shiwa/twowire/pkg/twi"
	"github.com/spf13/cobra"
)

// Стили таблицы адресов
var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	foundStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newScanCmd(a *app) *cobra.Command {
	var first, last string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Find devices that acknowledge their address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lo, err := parseAddr(first)
			if err != nil {
				return err
			}
			hi, err := parseAddr(last)
			if err != nil {
				return err
			}
			c, err := a.begin()
			if err != nil {
				return err
			}
			defer c.End()

			found := twi.Scan(c, lo, hi)
			fmt.Fprint(cmd.OutOrStdout(), renderGrid(found, lo, hi))
			if !a.quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "%d device(s)\n", len(found))
			}
			return nil
		},
	}
	// как у i2cdetect: зарезервированные адреса не трогаем
	cmd.Flags().StringVar(&first, "first", "0x08", "первый адрес")
	cmd.Flags().StringVar(&last, "last", "0x77", "последний адрес")
	return cmd
}

// renderGrid рисует таблицу 8x16 как i2cdetect: найденные адреса, "--" для пустых,
// пробелы вне диапазона [first, last].
func renderGrid(found []uint8, first, last uint8) string {
	present := make(map[uint8]bool, len(found))
	for _, a := range found {
		present[a] = true
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("    "))
	for col := 0; col < 16; col++ {
		b.WriteString(headerStyle.Render(fmt.Sprintf(" %x ", col)))
	}
	b.WriteByte('\n')

	for row := 0; row < 0x80; row += 16 {
		b.WriteString(headerStyle.Render(fmt.Sprintf("%02x: ", row)))
		for col := 0; col < 16; col++ {
			addr := uint8(row + col)
			switch {
			case addr < first || addr > last:
				b.WriteString("   ")
			case present[addr]:
				b.WriteString(foundStyle.Render(fmt.Sprintf("%02x", addr)) + " ")
			default:
				b.WriteString(dimStyle.Render("--") + " ")
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
