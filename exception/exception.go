package exception

import (
	"runtime/debug"

	"github.com/mezonai/dpos/logx"
	"github.com/mezonai/dpos/monitoring"
)

// SafeGo runs fn on its own goroutine. A panic is logged with its stack and counted, and the
// goroutine ends; the node keeps running.
func SafeGo(name string, fn func()) {
	go func() {
		defer recoverPanic(name)
		fn()
	}()
}

func recoverPanic(name string) {
	if r := recover(); r != nil {
		monitoring.IncreasePanicCount()
		logx.Error("PANIC", "Panic in: ", name, " ", r, "\n", string(debug.Stack()))
	}
}
