//go:build !linux

package main

import (
	"fmt"
	"runtime"
)

func run(runConfig) error {
	return fmt.Errorf("codex-linux-sandbox only runs on linux, not %s", runtime.GOOS)
}
