package operations

import (
	"fmt"
	"os"

	"github.com/mongodb/grip"
	"github.com/mongodb/grip/level"
	"github.com/mongodb/grip/send"
	"github.com/pkg/errors"
)

// GetSender returns the local logger of a grid binary: a file logger
// writing to <prefix>-<pid>.log when prefix is set, the native logger
// otherwise, plus a Splunk logger when Splunk is configured in the
// environment.
func GetSender(name, prefix string, threshold level.Priority) (send.Sender, error) {
	var (
		err     error
		sender  send.Sender
		senders []send.Sender
	)

	levelInfo := send.LevelInfo{Default: level.Info, Threshold: threshold}

	if splunk := send.GetSplunkConnectionInfo(); splunk.Populated() {
		sender, err = send.NewSplunkLogger(name, splunk, send.LevelInfo{Default: level.Info, Threshold: level.Alert})
		if err != nil {
			return nil, errors.Wrap(err, "creating the splunk logger")
		}
		senders = append(senders, sender)
	}

	if prefix == "" {
		sender, err = send.NewNativeLogger(name, levelInfo)
		if err != nil {
			return nil, errors.Wrap(err, "creating a native console logger")
		}
	} else {
		sender, err = send.NewFileLogger(name, fmt.Sprintf("%s-%d.log", prefix, os.Getpid()), levelInfo)
		if err != nil {
			return nil, errors.Wrap(err, "creating a file logger")
		}
	}
	senders = append(senders, sender)

	return send.NewConfiguredMultiSender(senders...), nil
}

func loggingSetup(name, prefix, threshold string) error {
	pri := level.FromString(threshold)
	if pri == level.Invalid {
		return errors.Errorf("invalid log level '%s'", threshold)
	}

	sender, err := GetSender(name, prefix, pri)
	if err != nil {
		return errors.WithStack(err)
	}
	if err = grip.SetSender(sender); err != nil {
		return errors.Wrap(err, "setting sender")
	}
	grip.SetName(name)

	return nil
}
