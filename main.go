package main

import (
	"github.com/mokomull/x11-client/cmd"
)

func main() {
	cmd.Execute()
}
