package main

import "github.com/quyphuc2111/lanpeek/cmd"

func main() {
	cmd.Execute()
}
