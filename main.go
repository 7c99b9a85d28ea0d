package main

import "github.com/kebairia/chargeback/cmd"

func main() {
	cmd.Execute()
}
