package twi

import (
	"fmt"

	"go.bug.st/serial"
)

// ListPorts возвращает последовательные порты, к которым можно подключить мост.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
