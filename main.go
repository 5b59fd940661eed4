package main

import "github.com/iamkelseyhelms/smallsh/cmd"

func main() {
	cmd.Execute()
}
