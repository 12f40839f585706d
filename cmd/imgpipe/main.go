package main

import (
	"os"

	"mcu-image-pipeline/cmd"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	rootCmd.AddCommand(cmd.NewDeviceCommand())
	rootCmd.AddCommand(cmd.NewHostCommand())
	rootCmd.AddCommand(cmd.NewSimulateCommand())
	rootCmd.AddCommand(cmd.NewPrepareCommand())
	rootCmd.AddCommand(cmd.NewConvertCommand())
	rootCmd.AddCommand(cmd.NewListCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
