package main

import "github.com/MeKo-Tech/slscan/cmd/slscan/cmd"

func main() {
	cmd.Execute()
}
