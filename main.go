package main

import "trackpoint/cli"

func main() {
	cli.Execute()
}
