package main

import "annotation-server/cmd"

func main() {
	cmd.Execute()
}
