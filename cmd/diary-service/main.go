package main

import (
	"os"

	"github.com/onionlab/onion/diaryservice"
)

func main() {
	if err := diaryservice.Run(); err != nil {
		os.Exit(1)
	}
}
