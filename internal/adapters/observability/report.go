package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Reporter logs isolated failures and counts them per operation.
type Reporter struct {
	log zerolog.Logger
}

func NewReporter(l zerolog.Logger) *Reporter { return &Reporter{log: l} }

// DefaultReporter writes through the global logger.
func DefaultReporter() *Reporter { return &Reporter{log: log.Logger} }

func (r *Reporter) ReportPartial(op, id string, err error) {
	PartialFailures.WithLabelValues(op).Inc()
	r.log.Warn().Err(err).Str("op", op).Str("id", id).Msg("partial failure")
}
