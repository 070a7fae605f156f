package main

import (
	"os"

	"github.com/saulo-duarte/chronos-goals/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		config.Logger().WithError(err).Error("goalctl failed")
		os.Exit(1)
	}
}
