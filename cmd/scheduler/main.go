package main

import (
	"fmt"
	"os"

	"pluginsched/cmd/scheduler/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if commands.IsRuntime(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
