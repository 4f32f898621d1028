package main

import "github.com/agusx1211/llmws/internal/cli"

func main() {
	cli.Execute()
}
