package main

import (
	"github.com/joho/godotenv"

	"studyrag/internal/cli"
)

func main() {
	_ = godotenv.Load()
	cli.Execute()
}
