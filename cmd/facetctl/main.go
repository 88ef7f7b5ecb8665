// Command facetctl compiles facet schemas, runs attribute scripts against
// them and reads the change journal.
package main

import "github.com/mesh-intelligence/facets/internal/cli"

func main() {
	cli.Execute()
}
