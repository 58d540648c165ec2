package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authgate/otp"
)

// ErrDropped reports a delivery that never reached the queue.
var ErrDropped = errors.New("notify: delivery dropped")

// Sender is the transport a Dispatcher delivers through.
type Sender interface {
	SendOTP(ctx context.Context, address, code string, purpose otp.Purpose) error
}

// Config controls buffering and concurrency.
type Config struct {
	BufferSize  int
	Workers     int
	DropIfFull  bool
	SendTimeout time.Duration
}

// Dispatcher asynchronously forwards deliveries to a Sender.
type Dispatcher struct {
	cfg       Config
	sender    Sender
	logger    *slog.Logger
	onFailure func(otp.Delivery, error)
	ch        chan otp.Delivery
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for send failures.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithFailureHook registers fn for every failed or dropped delivery. A
// dropped delivery is reported with ErrDropped.
func WithFailureHook(fn func(otp.Delivery, error)) Option {
	return func(d *Dispatcher) { d.onFailure = fn }
}

// NewDispatcher starts cfg.Workers goroutines draining the queue.
func NewDispatcher(cfg Config, sender Sender, opts ...Option) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}

	d := &Dispatcher{
		cfg:    cfg,
		sender: sender,
		logger: slog.Default(),
		ch:     make(chan otp.Delivery, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.run()
	}
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case delivery := <-d.ch:
			d.send(delivery)
		case <-d.done:
			for {
				select {
				case delivery := <-d.ch:
					d.send(delivery)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) send(delivery otp.Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	if err := d.sender.SendOTP(ctx, delivery.Address, delivery.Code, delivery.Purpose); err != nil {
		d.failed.Add(1)
		d.logger.Warn("otp delivery failed",
			slog.String("purpose", string(delivery.Purpose)),
			slog.String("error", err.Error()),
		)
		if d.onFailure != nil {
			d.onFailure(delivery, err)
		}
	}
}

// Enqueue implements otp.Deliverer.
func (d *Dispatcher) Enqueue(ctx context.Context, delivery otp.Delivery) bool {
	if d == nil || d.closed.Load() {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- delivery:
			return true
		case <-d.done:
			return false
		default:
			d.drop(delivery)
			return false
		}
	}

	select {
	case d.ch <- delivery:
		return true
	case <-ctx.Done():
		d.drop(delivery)
		return false
	case <-d.done:
		return false
	}
}

func (d *Dispatcher) drop(delivery otp.Delivery) {
	d.dropped.Add(1)
	d.logger.Warn("otp delivery dropped", slog.String("purpose", string(delivery.Purpose)))
	if d.onFailure != nil {
		d.onFailure(delivery, ErrDropped)
	}
}

// Close stops intake and waits for queued deliveries to finish.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped counts deliveries rejected because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed counts deliveries the Sender returned an error for.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
