package main

import "github.com/nextlevelbuilder/goremote/cmd"

func main() {
	cmd.Execute()
}
