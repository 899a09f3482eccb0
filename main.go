package main

import "github.com/buildersguild/sentinel/cmd"

func main() {
	cmd.Execute()
}
