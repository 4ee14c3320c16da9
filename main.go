package main

import (
	"github.com/steamscope/steamscope/cmd"
)

func main() {
	cmd.Execute()
}
