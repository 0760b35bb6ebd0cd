package main

import "animetrack/cmd/cli/command"

func main() {
	command.Execute()
}
