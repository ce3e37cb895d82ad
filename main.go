package main

import "github.com/xerc1155/xchain/cmd"

func main() {
	cmd.Execute()
}
