// The main package for the carcrawler executable.
package main

import (
	"github.com/JakeFAU/car-listing-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
