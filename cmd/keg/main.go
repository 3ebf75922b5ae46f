// Command keg installs software from source using declarative formulae.
package main

import "github.com/maxgog/keg/cmd/keg/internal"

func main() {
	internal.Execute()
}
