package main

import "github.com/tanq16/danzo-http/cmd"

func main() {
	cmd.Execute()
}
