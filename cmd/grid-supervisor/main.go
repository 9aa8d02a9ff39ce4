package main

import (
	"os"

	"github.com/evergreen-ci/grid"
	"github.com/evergreen-ci/grid/operations"
	"github.com/mongodb/grip"
)

func main() {
	app := operations.NewCommandApp(grid.SupervisorLoggerName, operations.Supervisor())

	grip.EmergencyFatal(app.Run(os.Args))
}
