package main

import "github.com/adamgarcia4/rendezvous/cmd"

func main() {
	cmd.Execute()
}
