package main

import (
	"github.com/joshuapassos/dbranch/cmd"
)

func main() {
	cmd.Execute()
}
