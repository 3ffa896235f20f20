package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/soundvault/entitlement-service/internal/core/ports"
)

type recordingMailer struct {
	mu    sync.Mutex
	sent  []ports.ActivationMail
	fail  error
	block chan struct{}
	done  chan struct{}
	delay time.Duration
}

func (m *recordingMailer) SendActivationKey(ctx context.Context, mail ports.ActivationMail) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	m.sent = append(m.sent, mail)
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return m.fail
}

func (m *recordingMailer) snapshot() []ports.ActivationMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.ActivationMail(nil), m.sent...)
}

func waitFor(t *testing.T, done <-chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d of %d sends", i, n)
		}
	}
}

func TestDispatcher_DeliversInOrderPerUser(t *testing.T) {
	mailer := &recordingMailer{done: make(chan struct{}, 32)}
	d := NewDispatcher(3, 16, mailer, time.Second, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	for i := int64(1); i <= 10; i++ {
		if err := d.Deliver(ports.ActivationMail{UserID: 7, PaymentID: i}); err != nil {
			t.Fatalf("Deliver: %v", err)
		}
	}
	waitFor(t, mailer.done, 10)
	cancel()
	d.Wait()

	sent := mailer.snapshot()
	for i, m := range sent {
		if m.PaymentID != int64(i+1) {
			t.Fatalf("mail %d out of order: payment %d", i, m.PaymentID)
		}
	}
}

func TestDispatcher_QueueFull(t *testing.T) {
	d := NewDispatcher(1, 1, &recordingMailer{}, time.Second, zerolog.Nop())

	if err := d.Deliver(ports.ActivationMail{UserID: 1}); err != nil {
		t.Fatalf("first Deliver: %v", err)
	}
	if err := d.Deliver(ports.ActivationMail{UserID: 1}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestDispatcher_FailedSendDoesNotStopWorker(t *testing.T) {
	mailer := &recordingMailer{fail: errors.New("smtp down"), done: make(chan struct{}, 4)}
	d := NewDispatcher(1, 4, mailer, time.Second, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	defer func() {
		cancel()
		d.Wait()
	}()

	_ = d.Deliver(ports.ActivationMail{UserID: 1, PaymentID: 1})
	_ = d.Deliver(ports.ActivationMail{UserID: 1, PaymentID: 2})
	waitFor(t, mailer.done, 2)

	if got := len(mailer.snapshot()); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestDispatcher_SendTimeout(t *testing.T) {
	mailer := &recordingMailer{block: make(chan struct{})}
	d := NewDispatcher(1, 1, mailer, 20*time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	_ = d.Deliver(ports.ActivationMail{UserID: 1})
	time.Sleep(100 * time.Millisecond)
	cancel()
	d.Wait()

	if got := len(mailer.snapshot()); got != 0 {
		t.Fatalf("blocked send must time out, got %d sends", got)
	}
}

func TestDispatcher_DrainsQueuedMailsOnStop(t *testing.T) {
	mailer := &recordingMailer{delay: 20 * time.Millisecond}
	d := NewDispatcher(1, 8, mailer, time.Second, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	for i := int64(1); i <= 5; i++ {
		if err := d.Deliver(ports.ActivationMail{UserID: 3, PaymentID: i}); err != nil {
			t.Fatalf("Deliver: %v", err)
		}
	}
	cancel()
	d.Wait()

	sent := mailer.snapshot()
	if len(sent) != 5 {
		t.Fatalf("expected all 5 queued mails to be sent on stop, got %d", len(sent))
	}
	for i, m := range sent {
		if m.PaymentID != int64(i+1) {
			t.Fatalf("mail %d out of order: payment %d", i, m.PaymentID)
		}
	}
}

func TestDispatcher_ShardIndexIsStable(t *testing.T) {
	d := NewDispatcher(8, 1, &recordingMailer{}, time.Second, zerolog.Nop())
	for id := int64(1); id < 100; id++ {
		a, b := d.shardIndex(id), d.shardIndex(id)
		if a != b || a < 0 || a >= 8 {
			t.Fatalf("shard for %d: %d/%d", id, a, b)
		}
	}
}
