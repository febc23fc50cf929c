package main

import "go-arenakv/cmd"

func main() {
	cmd.Execute()
}
