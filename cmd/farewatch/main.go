package main

import (
	"farewatch/internal/cli"
)

func main() {
	cli.Execute()
}
