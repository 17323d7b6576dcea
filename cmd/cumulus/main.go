package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/cumulus-iac/cumulus/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		var exit *cli.ExitCodeError
		if errors.As(err, &exit) {
			if exit.Msg != "" {
				fmt.Fprintln(os.Stderr, exit.Msg)
			}
			os.Exit(exit.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
