package main

import "paxosengine/cmd"

func main() {
	cmd.Execute()
}
