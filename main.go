package main

import "olistpipe/cmd"

func main() {
	cmd.Execute()
}
