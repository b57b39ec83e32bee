package main

import "github.com/andresmejia3/shadecheck/cmd"

func main() {
	cmd.Execute()
}
