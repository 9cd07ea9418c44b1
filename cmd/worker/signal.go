package main

import (
	"os"
	"os/signal"
	"syscall"
)

// waitForSignal blocks until the process receives SIGINT or SIGTERM.
func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
