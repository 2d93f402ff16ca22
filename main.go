package main

import (
	"os"

	"ticket-marketplace/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		os.Exit(1)
	}
}
