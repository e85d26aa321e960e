package main

import "github.com/TArch64/fpv-bridge/cmd"

func main() {
	cmd.Execute()
}
