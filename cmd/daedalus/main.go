package main

import "github.com/wehubfusion/Daedalus/cmd/daedalus/cmd"

func main() {
	cmd.Execute()
}
