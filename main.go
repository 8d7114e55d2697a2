package main

import (
	"os"

	"github.com/fleetops/dutyroster/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
