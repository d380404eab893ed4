package main

import (
	"os"

	"github.com/upkeepqr/maintcue/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
