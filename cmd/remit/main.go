package main

import (
	"os"

	"github.com/grovetools/remit/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
