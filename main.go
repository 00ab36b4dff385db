package main

import "github.com/camwirelab/camwire/cmd"

func main() {
	cmd.Execute()
}
