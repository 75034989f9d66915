// The main package for the marketwatch executable.
package main

import (
	"github.com/marketwatch/crawler/cmd"
)

func main() {
	cmd.Execute()
}
