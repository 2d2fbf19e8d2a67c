package poller_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabihorn/beiter-alert-bot/internal/alert"
	"github.com/gabihorn/beiter-alert-bot/internal/config"
	"github.com/gabihorn/beiter-alert-bot/internal/dedup"
	"github.com/gabihorn/beiter-alert-bot/internal/locality"
	"github.com/gabihorn/beiter-alert-bot/internal/metrics"
	"github.com/gabihorn/beiter-alert-bot/internal/poller"
)

type alternatingSource struct {
	cycle   int
	records []alert.Record
}

func (s *alternatingSource) Fetch(context.Context) ([]alert.Record, error) {
	r := s.records[s.cycle%len(s.records)]
	s.cycle++
	return []alert.Record{r}, nil
}

type dataSender struct{ sent []string }

func (d *dataSender) Send(_ context.Context, p alert.Payload) error {
	d.sent = append(d.sent, p.AlertDate)
	return nil
}

func TestDefaultConfig_AlternatingAlertsSentOncePerIdentity(t *testing.T) {
	cfg := config.Default()
	src := &alternatingSource{records: []alert.Record{
		{Data: "ביתר עילית", Date: "A"},
		{Data: "ביתר עילית, צור הדסה", Date: "B"},
	}}
	sender := &dataSender{}
	loop := poller.New(
		cfg.PollerConfig(),
		src,
		locality.New(cfg.Locality),
		dedup.New(cfg.DedupHistory),
		sender,
		zerolog.Nop(),
		metrics.New(prometheus.NewRegistry()),
	)

	for i := 0; i < 8; i++ {
		require.NoError(t, loop.Cycle(context.Background()))
	}
	assert.Equal(t, []string{"A", "B"}, sender.sent)
}
