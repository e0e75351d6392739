package main

import "github.com/ppiankov/probeplane/internal/cli"

func main() {
	cli.Execute()
}
