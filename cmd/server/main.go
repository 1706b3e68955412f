package main

import (
	"flag"
	"os"

	"skimo-var/config"
	"skimo-var/core/appbootstrap"
	"skimo-var/core/utils"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml config file")
	flag.Parse()

	logger := utils.NewLogger()
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("CONFIG load failed: %v", err)
		os.Exit(1)
	}
	if err := appbootstrap.Run(cfg, logger); err != nil {
		logger.Errorf("RUN failed: %v", err)
		os.Exit(1)
	}
}
