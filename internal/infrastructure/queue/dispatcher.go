package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/soundvault/entitlement-service/internal/api/metrics"
	"github.com/soundvault/entitlement-service/internal/core/ports"
	"github.com/soundvault/entitlement-service/pkg/logger"
)

const (
	defaultWorkers     = 4
	defaultBuffer      = 256
	defaultSendTimeout = 15 * time.Second
)

// ErrQueueFull is returned by Deliver when the worker owning the user is saturated.
var ErrQueueFull = errors.New("mail queue is full")

type job struct {
	id   string
	mail ports.ActivationMail
}

// Dispatcher routes activation mails to a fixed set of workers using consistent
// hashing on the user id, so mails for one user are sent in order.
type Dispatcher struct {
	workers     []chan job
	mailer      ports.ActivationMailer
	sendTimeout time.Duration
	log         zerolog.Logger
	wg          sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers, each
// buffering up to buffer jobs. Non-positive values fall back to defaults.
func NewDispatcher(numWorkers, buffer int, mailer ports.ActivationMailer, sendTimeout time.Duration, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	d := &Dispatcher{
		workers:     make([]chan job, numWorkers),
		mailer:      mailer,
		sendTimeout: sendTimeout,
		log:         log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan job, buffer)
	}
	return d
}

// Start launches all worker goroutines. Once ctx is cancelled each worker sends
// what is still buffered and returns; use Wait to block until they have.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go func(id int, ch <-chan job) {
			defer d.wg.Done()
			d.runWorker(ctx, id, ch)
		}(i, ch)
	}
}

// Wait blocks until every worker has stopped.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Deliver implements ports.ActivationDelivery. It never blocks: when the
// owning worker's buffer is full the mail is dropped and ErrQueueFull returned.
func (d *Dispatcher) Deliver(mail ports.ActivationMail) error {
	idx := d.shardIndex(mail.UserID)
	j := job{id: uuid.NewString(), mail: mail}
	select {
	case d.workers[idx] <- j:
		metrics.MailQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
		d.log.Debug().
			Str("job_id", j.id).
			Int64("user_id", mail.UserID).
			Int("worker_id", idx).
			Msg("activation mail queued")
		return nil
	default:
		metrics.MailDeliveriesTotal.WithLabelValues("dropped").Inc()
		d.log.Error().
			Int64("user_id", mail.UserID).
			Int64("payment_id", mail.PaymentID).
			Int("worker_id", idx).
			Msg("mail queue full, activation mail dropped")
		return ErrQueueFull
	}
}

// shardIndex maps a user id deterministically to a worker index.
func (d *Dispatcher) shardIndex(userID int64) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.FormatInt(userID, 10)))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan job) {
	depth := metrics.MailQueueDepth.WithLabelValues(strconv.Itoa(id))
	for {
		select {
		case <-ctx.Done():
			d.drain(id, ch)
			depth.Set(0)
			return
		case j := <-ch:
			depth.Set(float64(len(ch)))
			d.send(id, j)
		}
	}
}

// drain gives every job still buffered one send attempt.
func (d *Dispatcher) drain(id int, ch <-chan job) {
	n := 0
	for {
		select {
		case j := <-ch:
			d.send(id, j)
			n++
		default:
			if n > 0 {
				d.log.Info().Int("worker_id", id).Int("drained", n).Msg("mail worker drained pending jobs")
			}
			return
		}
	}
}

// send is bounded by sendTimeout only; stopping the dispatcher never aborts a
// send in progress.
func (d *Dispatcher) send(workerID int, j job) {
	sendCtx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	start := time.Now()
	err := d.mailer.SendActivationKey(sendCtx, j.mail)
	metrics.MailSendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.MailDeliveriesTotal.WithLabelValues("failed").Inc()
		d.log.Error().Err(err).
			Str("job_id", j.id).
			Int64("user_id", j.mail.UserID).
			Int64("payment_id", j.mail.PaymentID).
			Str("activation_key", logger.MaskKey(j.mail.ActivationKey)).
			Int("worker_id", workerID).
			Msg("activation mail failed")
		return
	}
	metrics.MailDeliveriesTotal.WithLabelValues("sent").Inc()
}
