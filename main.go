package main

import "VibeMelody/cmd"

func main() {
	cmd.Execute()
}
