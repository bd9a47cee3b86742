package main

import (
	"X402FM/cmd"
)

func main() {
	cmd.Execute()
}
