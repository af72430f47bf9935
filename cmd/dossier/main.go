package main

import (
	"dossier/cmd/cmd"
	"dossier/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger
	cmd.Execute()
}
