// Package mainboilerplate contains shared boilerplate for programs embedding
// the Atlas engine: configuration parsing, logging, and metrics
// registration. The idea is to provide a selection of narrowly scoped
// methods so callers do not have to buy-in to an all-or-nothing approach.
package mainboilerplate

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.manifold.dev/atlas/metrics"
)

// Must panics if |err| is non-nil, supplying |msg| and |extra| as
// formatter and fields of the generated panic.
func Must(err error, msg string, extra ...interface{}) {
	if err == nil {
		return
	}
	var f = log.Fields{"err": err}
	for i := 0; i+1 < len(extra); i += 2 {
		f[extra[i].(string)] = extra[i+1]
	}
	log.WithFields(f).Panic(msg)
}

// RegisterMetrics registers all engine collectors with |reg|.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range metrics.AtlasCollectors() {
		if err := reg.Register(c); err != nil {
			return errors.WithMessage(err, "registering collector")
		}
	}
	return nil
}
