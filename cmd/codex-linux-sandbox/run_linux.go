package main

import (
	"github.com/opencodex/codex/internal/sandbox/linuxsandbox"
)

// run enforces the sandbox and execs; it returns only on failure.
func run(cfg runConfig) error {
	return linuxsandbox.Run(linuxsandbox.RunOptions{
		PolicyCwd:            cfg.policyCwd,
		PolicyJSON:           cfg.policyJSON,
		UseBwrap:             cfg.useBwrap,
		ApplySeccompThenExec: cfg.applySeccompThenExec,
		NoProc:               cfg.noProc,
		Command:              cfg.command,
	})
}
