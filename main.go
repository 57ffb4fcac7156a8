package main

import "github.com/agentic-research/medgraph/cmd"

func main() {
	cmd.Execute()
}
