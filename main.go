package main

import (
	"github.com/jamesdoliver/featune-sub001/cmd"
)

func main() {
	cmd.Execute()
}
