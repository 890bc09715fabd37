package main

import "github.com/andresmejia3/goniometer/cmd"

func main() {
	cmd.Execute()
}
