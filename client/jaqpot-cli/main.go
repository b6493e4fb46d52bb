package main

import "jaqpot/client/jaqpot-cli/cmd"

func main() {
	cmd.Execute()
}
