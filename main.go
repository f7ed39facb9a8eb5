package main

import "courtside/cmd"

func main() {
	cmd.Execute()
}
