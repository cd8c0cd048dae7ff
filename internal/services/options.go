package services

import (
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultHistoryLimit = 50

type options struct {
	historyLimit int
	policy       EditPolicy
	receipts     *ReceiptTracker
	noReceipts   bool
	now          func() time.Time
	location     *time.Location
	log          *logrus.Entry
}

// Option настраивает MessageSync, MessageService и RoomDirectory
type Option func(*options)

func WithHistoryLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

func WithEditPolicy(p EditPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithReceiptTracker подменяет трекер прочтений. nil отключает отметки.
func WithReceiptTracker(t *ReceiptTracker) Option {
	return func(o *options) {
		o.receipts = t
		o.noReceipts = t == nil
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLocation задает часовой пояс для группировки по датам
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

func WithLogger(entry *logrus.Entry) Option {
	return func(o *options) { o.log = entry }
}

func buildOptions(component string, opts []Option) options {
	o := options{
		historyLimit: DefaultHistoryLimit,
		policy:       DefaultEditPolicy(),
		now:          time.Now,
		location:     time.Local,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logrus.WithField("component", component)
	}
	return o
}
