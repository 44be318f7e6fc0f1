// xmangle filters and rewrites Jira XML exports according to a declarative
// rule set.
package main

import (
	"os"

	"github.com/hupe1980/xmangle/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
