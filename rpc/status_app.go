package rpc

import (
	"net/http"

	"github.com/evergreen-ci/gimlet"
	"github.com/evergreen-ci/grid/broker"
	"github.com/pkg/errors"
)

// NewBrokerStatusHandler returns an HTTP handler serving the broker snapshot
// as JSON at /v1/status.
func NewBrokerStatusHandler(b *broker.Broker) (http.Handler, error) {
	app := gimlet.NewApp()
	app.AddMiddleware(gimlet.MakeRecoveryLogger())
	app.AddRoute("/status").Version(1).Get().Handler(brokerStatus(b))

	h, err := app.Handler()
	if err != nil {
		return nil, errors.Wrap(err, "resolving status application")
	}
	return h, nil
}

func brokerStatus(b *broker.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gimlet.WriteJSON(w, b.Snapshot())
	}
}
