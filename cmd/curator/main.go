// Command curator saves edited slot lists and association sets against
// local storage and commits single-field edits.
package main

import "github.com/mesh-intelligence/curator/internal/cli"

func main() {
	cli.Execute()
}
