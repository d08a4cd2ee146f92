package main

import (
	"os"

	"github.com/onionlab/onion/outboxworker"
)

func main() {
	if err := outboxworker.Run(); err != nil {
		os.Exit(1)
	}
}
