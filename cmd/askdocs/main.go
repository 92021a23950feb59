package main

import (
	"github.com/joho/godotenv"

	"askdocs/internal/cli"
)

func main() {
	_ = godotenv.Load()
	cli.Execute()
}
