package operations

import (
	"strconv"
	"strings"

	"github.com/mongodb/grip"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

func joinFlagNames(ids ...string) string { return strings.Join(ids, ", ") }

func mergeBeforeFuncs(ops ...cli.BeforeFunc) cli.BeforeFunc {
	return func(c *cli.Context) error {
		catcher := grip.NewBasicCatcher()

		for _, op := range ops {
			if op == nil {
				continue
			}
			catcher.Add(op(c))
		}

		return catcher.Resolve()
	}
}

// requireArgs checks that the number of positional arguments is between min
// and max inclusive.
func requireArgs(min, max int) cli.BeforeFunc {
	return func(c *cli.Context) error {
		n := c.NArg()
		if n < min || n > max {
			if min == max {
				return errors.Errorf("expected %d arguments, got %d", min, n)
			}
			return errors.Errorf("expected between %d and %d arguments, got %d", min, max, n)
		}
		return nil
	}
}

func parseUint32(name, value string) (uint32, error) {
	v, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s '%s'", name, value)
	}
	return uint32(v), nil
}

func parsePID(value string) (int, error) {
	pid, err := strconv.Atoi(value)
	if err != nil || pid <= 0 {
		return 0, errors.Errorf("invalid process ID '%s'", value)
	}
	return pid, nil
}
