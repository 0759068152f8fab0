package main

import "github.com/ramiqadoumi/go-durable-orchestrator/services/submission/cli"

func main() {
	cli.Execute()
}
