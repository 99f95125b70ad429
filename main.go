package main

import (
	"os"

	"github.com/spf13/viper"

	"excel-translator-web/cli"
)

func main() {
	flags := cli.NewFlags()
	rootCmd := cli.CreateRootCommand(flags, viper.New())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
