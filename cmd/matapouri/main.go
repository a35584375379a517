package main

import "github.com/matapouriblue/matapouri-blue/internal/cli"

func main() {
	cli.Execute()
}
