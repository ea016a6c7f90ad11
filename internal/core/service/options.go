package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/lending/internal/core/domain"
	"github.com/rl1809/lending/internal/port"
)

const tracerName = "github.com/rl1809/lending/internal/core/service"

type options struct {
	logger       zerolog.Logger
	now          func() time.Time
	tracer       trace.Tracer
	tasks        port.TaskQueue
	deliveryFee  int64
	returnWindow time.Duration
	lockTTL      time.Duration
	notifier     port.Notifier
	invoices     port.InvoiceRenderer
	mailer       port.Mailer
}

// Option configures a service.
type Option func(*options)

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithTaskQueue runs side effects on queue instead of inline.
func WithTaskQueue(queue port.TaskQueue) Option {
	return func(o *options) { o.tasks = queue }
}

func WithDeliveryFee(cents int64) Option {
	return func(o *options) { o.deliveryFee = cents }
}

func WithReturnWindow(window time.Duration) Option {
	return func(o *options) { o.returnWindow = window }
}

func WithLockTTL(ttl time.Duration) Option {
	return func(o *options) { o.lockTTL = ttl }
}

func WithNotifier(n port.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

func WithInvoices(renderer port.InvoiceRenderer, mailer port.Mailer) Option {
	return func(o *options) {
		o.invoices = renderer
		o.mailer = mailer
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:       zerolog.Nop(),
		now:          time.Now,
		tracer:       otel.Tracer(tracerName),
		deliveryFee:  499,
		returnWindow: domain.DefaultReturnWindow,
		lockTTL:      5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tasks == nil {
		o.tasks = inlineQueue{logger: o.logger}
	}
	return o
}

// inlineQueue runs tasks synchronously when no worker pool is wired.
type inlineQueue struct {
	logger zerolog.Logger
}

func (q inlineQueue) Enqueue(task port.Task) bool {
	if err := task.Run(context.Background()); err != nil {
		q.logger.Warn().Err(err).Str("task", task.Name).Msg("task failed")
	}
	return true
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
