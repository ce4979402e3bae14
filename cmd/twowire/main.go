// twowire — утилита для шины I2C поверх wire.Controller: поиск устройств, чтение и запись
// регистров, режим slave и демонстрация на шине в памяти.
//
// Использование:
//
//	twowire scan                        — таблица адресов как у i2cdetect
//	twowire read 0x68 6 --reg 0x3b      — чтение через repeated start
//	twowire write 0x40 0x00 0x21        — запись байтов
//	twowire listen --address 0x42       — режим slave до SIGINT/SIGTERM
//	twowire --driver bridge ports       — последовательные порты для моста
//	twowire sim                         — сценарий на шине в памяти, без оборудования
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "twowire:", err)
		os.Exit(1)
	}
}
