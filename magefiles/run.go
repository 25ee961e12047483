//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed. ANIMA_CONFIG selects the configuration file.
func (Run) Engine() error {
	mg.Deps(Build.All)
	fmt.Println("Run engine...")
	if path := os.Getenv("ANIMA_CONFIG"); path != "" {
		fmt.Printf("using configuration %s\n", path)
	}
	_, err := executeCmd("go", withArgs("run", "main.go"), withStream())
	return err
}
