package main

import "github.com/aponysus/courier/internal/cli"

func main() {
	cli.Execute()
}
