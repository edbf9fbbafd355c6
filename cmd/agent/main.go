package main

import "github.com/hyperos-labs/agent-core/services/agent/cli"

func main() {
	cli.Execute()
}
