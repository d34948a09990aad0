// The main package for the inkpress executable.
package main

import (
	"github.com/JakeFAU/inkpress/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
