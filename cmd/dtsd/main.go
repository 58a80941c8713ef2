// Command dtsd is the DTS transfer daemon.
package main

import (
	"fmt"
	"os"

	"github.com/dts-project/dts/cmd/dtsd/command"
)

func main() {
	if err := command.Command().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dtsd:", err)
		os.Exit(1)
	}
}
