package main

import (
	"os"

	"maglink/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
