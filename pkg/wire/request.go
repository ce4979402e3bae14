package wire

// maxInternalAddressSize — максимальная длина внутреннего адреса (указателя регистра).
const maxInternalAddressSize = 3

// Request — каноническая форма чтения; все варианты RequestFrom сводятся к ней.
type Request struct {
	Address  uint8
	Quantity int
	// InternalAddress передаётся старшим байтом вперёд перед чтением, если InternalAddressSize > 0.
	InternalAddress     uint32
	InternalAddressSize int
	SendStop            bool
}

// RequestFrom читает до quantity байт по адресу addr со stop-условием.
func (c *Controller) RequestFrom(addr uint8, quantity int) int {
	return c.Request(Request{Address: addr, Quantity: quantity, SendStop: true})
}

func (c *Controller) RequestFromStop(addr uint8, quantity int, sendStop bool) int {
	return c.Request(Request{Address: addr, Quantity: quantity, SendStop: sendStop})
}

// RequestFromInternal сначала пишет внутренний адрес iaddr длиной isize байт (не больше 3)
// без stop, затем читает через repeated start.
func (c *Controller) RequestFromInternal(addr uint8, quantity int, iaddr uint32, isize int, sendStop bool) int {
	return c.Request(Request{
		Address:             addr,
		Quantity:            quantity,
		InternalAddress:     iaddr,
		InternalAddressSize: isize,
		SendStop:            sendStop,
	})
}

// Request выполняет блокирующее чтение в буфер приёма и возвращает число прочитанных байтов.
// Короткое чтение не ошибка: оно видно по возвращаемому значению и Available.
func (c *Controller) Request(r Request) int {
	if r.InternalAddressSize > 0 {
		c.BeginTransmission(r.Address)

		size := r.InternalAddressSize
		if size > maxInternalAddressSize {
			size = maxInternalAddressSize
		}
		for size > 0 {
			size--
			c.WriteByte(byte(r.InternalAddress >> (uint(size) * 8)))
		}
		if st := c.EndTransmissionStop(false); !st.OK() {
			c.log.Debug("internal address not accepted", "address", r.Address, "status", st.String())
		}
	}

	quantity := r.Quantity
	if quantity > BufferLength {
		quantity = BufferLength
	}
	if quantity < 0 {
		quantity = 0
	}

	n := c.transport.BlockingRead(r.Address, c.rx.data[:quantity], r.SendStop)
	if n < 0 {
		n = 0
	}
	if n > quantity {
		n = quantity
	}
	c.rx.cursor = 0
	c.rx.length = n

	c.log.Debug("request", "address", r.Address, "quantity", quantity, "read", n)
	return n
}
