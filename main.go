package main

import "github.com/crystaldolphin/dolphinbot/cmd"

func main() {
	cmd.Execute()
}
