package main

import "github.com/cgdops/rtaingest/cmd"

func main() {
	cmd.Execute()
}
