package main

import "github.com/Arkanys/chronomodel/cmd/chronomodel/cmd"

func main() {
	cmd.Execute()
}
