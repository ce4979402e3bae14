package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// parseAddr разбирает 7-битный адрес: 0x50, 80, 0o120.
func parseAddr(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("address %q: %w", s, err)
	}
	if v > 0x7f {
		return 0, fmt.Errorf("address %#x out of 7-bit range", v)
	}
	return uint8(v), nil
}

func parseBytes(args []string) ([]byte, error) {
	p := make([]byte, 0, len(args))
	for _, s := range args {
		v, err := strconv.ParseUint(s, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("byte %q: %w", s, err)
		}
		p = append(p, byte(v))
	}
	return p, nil
}

// parseHex разбирает строку вида "de ad be ef" или "deadbeef".
func parseHex(s string) ([]byte, error) {
	p, err := hex.DecodeString(strings.Join(strings.Fields(s), ""))
	if err != nil {
		return nil, fmt.Errorf("hex %q: %w", s, err)
	}
	return p, nil
}
