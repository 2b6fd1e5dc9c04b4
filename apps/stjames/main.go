package main

import "github.com/PhillipSMartin/StJames/internal/cli"

func main() {
	cli.Execute()
}
