package main

import (
	"fmt"
	"os"

	"github.com/nanolos/gate/internal/gatectl"
)

func main() {
	if err := gatectl.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
