// Command dtsq submits files to a DTS transfer daemon.
package main

import (
	"fmt"
	"os"

	"github.com/dts-project/dts/cmd/dtsq/command"
)

func main() {
	if err := command.Command().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dtsq:", err)
		os.Exit(1)
	}
}
