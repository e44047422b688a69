package main

import "github.com/dyike/AnalystCouncil/internal/cli"

func main() {
	cli.Run()
}
