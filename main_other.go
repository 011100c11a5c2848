//go:build !linux

package main

import (
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

// The hotkey backend needs the OS main thread on macOS and Windows.
func init() {
	runtime.LockOSThread()
}

func main() {
	mainthread.Init(execute)
}
