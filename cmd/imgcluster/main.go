package main

import (
	"imgcluster/cmd/handlers"
	"imgcluster/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger
	handlers.Execute()
}
