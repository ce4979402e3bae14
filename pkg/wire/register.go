package wire

// WriteRegister пишет регистр reg и данные p одной транзакцией. Если данные не помещаются в
// буфер, ничего не отправляется и возвращается StatusDataTooLong.
func (c *Controller) WriteRegister(addr, reg uint8, p []byte) Status {
	c.BeginTransmission(addr)
	c.WriteByte(reg)
	if _, err := c.Write(p); err != nil {
		c.tx.reset()
		c.state = Idle
		return StatusDataTooLong
	}
	return c.EndTransmission()
}

// ReadRegister пишет указатель регистра reg, через repeated start читает до len(p) байт в p
// и возвращает число прочитанных байтов.
func (c *Controller) ReadRegister(addr, reg uint8, p []byte) int {
	n := c.RequestFromInternal(addr, len(p), uint32(reg), 1, true)
	m, _ := c.Read(p[:n])
	return m
}
