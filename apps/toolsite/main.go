package main

import "github.com/quatton/toolsite/apps/toolsite/cmd"

func main() {
	cmd.Execute()
}
