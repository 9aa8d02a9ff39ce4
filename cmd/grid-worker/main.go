// grid-worker executes the jobs of one service. The supervisor starts it
// with the broker address, service ID, service version and library path.
package main

import (
	"os"

	"github.com/evergreen-ci/grid"
	"github.com/evergreen-ci/grid/operations"
	"github.com/mongodb/grip"
)

func main() {
	app := operations.NewCommandApp(grid.WorkerLoggerName, operations.Worker())

	grip.EmergencyFatal(app.Run(os.Args))
}
