package twi

// heldWrite — запись без stop, ожидающая следующей операции для repeated start.
// Драйверы копируют данные: буфер контроллера переиспользуется после возврата.
type heldWrite struct {
	addr uint8
	data []byte
	ok   bool
}

func (h *heldWrite) hold(addr uint8, p []byte) {
	h.addr = addr
	h.data = append(h.data[:0], p...)
	h.ok = true
}

// take возвращает удерживаемую запись и освобождает её.
func (h *heldWrite) take() (addr uint8, data []byte, ok bool) {
	if !h.ok {
		return 0, nil, false
	}
	h.ok = false
	return h.addr, h.data, true
}
