// The main package for the wikidot-crawler executable.
package main

import "github.com/JakeFAU/wikidot-crawler/cmd"

func main() {
	cmd.Execute()
}
