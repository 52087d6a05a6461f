package main

import (
	"os"

	"smartclim/internal/util"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		util.Linef("[ERROR]", util.ColorRed, "%v", err)
		os.Exit(1)
	}
}
