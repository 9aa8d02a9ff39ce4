package main

import (
	"os"

	"github.com/evergreen-ci/grid"
	"github.com/evergreen-ci/grid/operations"
	"github.com/mongodb/grip"
)

func main() {
	app := operations.NewApp(grid.ControlLoggerName, "operate grid supervisors and brokers", operations.Control()...)

	grip.EmergencyFatal(app.Run(os.Args))
}
