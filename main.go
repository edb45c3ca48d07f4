package main

import "github.com/banterworks/banter/cmd"

func main() {
	cmd.Execute()
}
