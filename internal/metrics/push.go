package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const JobName = "multiarch_publisher"

// Push sends everything registered in the default registry to a Prometheus push gateway.
// The publisher is a one-shot process, so there is nothing to scrape.
func Push(gatewayURL string) error {
	err := push.New(gatewayURL, JobName).
		Gatherer(prometheus.DefaultGatherer).
		Push()
	if err != nil {
		return errors.Wrap(err, "push to gateway failed")
	}

	return nil
}
