package main

import "github.com/ssloxford/current-affairs/internal/cli"

func main() {
	cli.Execute()
}
