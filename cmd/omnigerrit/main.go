// Command omnigerrit browses the change and build timeline of a device.
package main

import (
	"os"

	"github.com/omnirom/omnigerrit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
