package wire

// handleReceive вызывается драйвером, когда внешний мастер записал p в это устройство.
// Пока в буфере приёма есть непрочитанные данные, новые байты отбрасываются целиком.
func (c *Controller) handleReceive(p []byte) {
	if c.onReceive == nil {
		return
	}
	if pending := c.rx.remaining(); pending > 0 {
		c.log.Debug("slave receive dropped", "len", len(p), "pending", pending)
		return
	}
	n := c.rx.fill(p)
	c.onReceive(n)
}

// handleRequest вызывается драйвером, когда внешний мастер читает из этого устройства.
// Незавершённая передача мастера теряется: буфер передачи очищается до вызова обработчика.
func (c *Controller) handleRequest() {
	if c.onRequest == nil {
		return
	}
	c.tx.reset()
	c.state = SlaveReplying
	c.onRequest()
	c.state = Idle
}
