package main

import (
	"os"

	"github.com/vrceventbot/vrceventbot/internal/cli"
)

func main() {
	os.Exit(cli.ExecuteWithErrorCode(os.Args[1:]))
}
