package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "salesflow-worker",
		Usage:                 "Run pipeline automations",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewRunCommand(),
			NewSweepCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
