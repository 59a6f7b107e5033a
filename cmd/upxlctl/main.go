package main

import (
	"github.com/robotalks/upxl/pkg/cli/sh"

	_ "github.com/robotalks/upxl/pkg/cli/cmds/leds"
)

//go-build: CGO_ENABLED=0

func main() {
	sh.Main()
}
