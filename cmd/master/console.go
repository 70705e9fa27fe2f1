package main

import (
	"bufio"
	"io"
	"strings"

	"github.com/nemanja-m/hivemind/internal/shared/logging"
)

// Controller receives the commands typed on the console.
type Controller interface {
	Shutdown()
	Kill()
}

// runConsole reads commands from in until it is exhausted or a kill command
// arrives.
func runConsole(in io.Reader, ctl Controller, logger logging.Logger) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		switch cmd := strings.ToLower(strings.TrimSpace(scanner.Text())); cmd {
		case "":
		case "exit":
			logger.Info("Console requested shutdown")
			ctl.Shutdown()
		case "kill":
			logger.Warn("Console requested kill")
			ctl.Kill()
			return
		default:
			logger.Warn("Unknown console command", "command", cmd)
		}
	}
}
