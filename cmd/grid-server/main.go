// grid-server runs a job/result broker. The supervisor starts it with the
// listen address as its only argument.
package main

import (
	"os"

	"github.com/evergreen-ci/grid"
	"github.com/evergreen-ci/grid/operations"
	"github.com/mongodb/grip"
)

func main() {
	app := operations.NewCommandApp(grid.ServerLoggerName, operations.Server())

	grip.EmergencyFatal(app.Run(os.Args))
}
