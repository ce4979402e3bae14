package wire

import "sync/atomic"

var std atomic.Pointer[Controller]

func init() {
	std.Store(New(DefaultConfig, nil))
}

// Default возвращает контроллер по умолчанию. До SetDefault он работает с шиной без устройств.
func Default() *Controller {
	return std.Load()
}

// SetDefault делает c контроллером по умолчанию.
func SetDefault(c *Controller) {
	std.Store(c)
}
