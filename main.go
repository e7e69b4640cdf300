package main

import (
	"fmt"
	"os"

	"github.com/malyn/groundcontrol/cmd"
	"github.com/malyn/groundcontrol/internal/supervisor"
)

func main() {
	if err := cmd.CreateRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(supervisor.ExitUsage)
	}
}
