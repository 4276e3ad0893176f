// The main package for the release-crawler executable.
package main

import (
	"github.com/moviefeed/release-crawler/cmd"
)

func main() {
	cmd.Execute()
}
