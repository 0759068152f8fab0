package main

import "github.com/ramiqadoumi/go-durable-orchestrator/services/scheduler/cli"

func main() {
	cli.Execute()
}
