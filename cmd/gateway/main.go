package main

import "github.com/astro-web3/function-gateway/internal/cli"

func main() {
	cli.Execute()
}
