package main

import (
	"os"
	"runtime/debug"

	"github.com/mezonai/dpos/cmd"
	"github.com/mezonai/dpos/logx"
	"github.com/mezonai/dpos/monitoring"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			monitoring.IncreasePanicCount()
			_ = logx.Errorf("NODE CRASHED: %v\n%s", r, debug.Stack())
			os.Exit(1)
		}
	}()

	cmd.Execute()
}
