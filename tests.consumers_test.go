package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/smtp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedPop serves the given items in order, then blocks until ctx is done.
func scriptedPop(t *testing.T, items ...MockQueueItem) func(ctx context.Context, qids ...string) (string, []byte, error) {
	t.Helper()
	var mu sync.Mutex
	return func(ctx context.Context, qids ...string) (string, []byte, error) {
		mu.Lock()
		if len(items) > 0 {
			item := items[0]
			items = items[1:]
			mu.Unlock()
			if item.QID == "" {
				return "", nil, errors.New("transient pop failure")
			}
			return item.QID, item.Payload, nil
		}
		mu.Unlock()
		<-ctx.Done()
		return "", nil, ctx.Err()
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestBoltDBConsumer(t *testing.T) {
	book := testBook(5, 7)
	q := &MockQueuer{PopFunc: scriptedPop(t,
		MockQueueItem{QID: BookCreateQueue, Payload: mustJSON(t, BookEvent{BookID: 5, OwnerID: 7, Book: &book})},
		MockQueueItem{QID: "", Payload: nil},
		MockQueueItem{QID: BookUpdateQueue, Payload: []byte("{broken")},
		MockQueueItem{QID: BookUpdateQueue, Payload: mustJSON(t, BookEvent{BookID: 6, OwnerID: 7})},
		MockQueueItem{QID: "unknown", Payload: mustJSON(t, BookEvent{BookID: 8, OwnerID: 7})},
		MockQueueItem{QID: BookDeleteQueue, Payload: mustJSON(t, BookEvent{BookID: 5, OwnerID: 7})},
	)}

	var mu sync.Mutex
	var saved []int64
	var deleted []int64
	backup := &MockBookBackup{
		SaveFunc: func(ctx context.Context, b Book) error {
			mu.Lock()
			defer mu.Unlock()
			saved = append(saved, b.ID)
			return nil
		},
		DeleteFunc: func(ctx context.Context, ownerID, id int64) error {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, int64(7), ownerID)
			deleted = append(deleted, id)
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewBoltDBConsumer(zap.NewNop(), q, backup).Consume(ctx, BookCreateQueue, BookUpdateQueue, BookDeleteQueue)
	}()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(deleted) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{5}, saved)
	assert.Equal(t, []int64{5}, deleted)
}

func TestConsumerBacksOffOnPopFailure(t *testing.T) {
	var calls int64
	q := &MockQueuer{PopFunc: func(ctx context.Context, qids ...string) (string, []byte, error) {
		atomic.AddInt64(&calls, 1)
		return "", nil, errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
	}}
	backup := &MockBookBackup{}

	ctx, cancel := context.WithTimeout(context.Background(), 350*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := NewBoltDBConsumer(zap.NewNop(), q, backup).Consume(ctx, BookCreateQueue)
	assert.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	// retries at about 0, 100ms and 300ms.
	n := atomic.LoadInt64(&calls)
	assert.GreaterOrEqual(t, n, int64(2))
	assert.LessOrEqual(t, n, int64(5))
}

func TestMailConsumer(t *testing.T) {
	mail := VerificationMail{To: "a@b.io", Firstname: "Ada", Code: "123456"}
	q := &MockQueuer{PopFunc: scriptedPop(t,
		MockQueueItem{QID: MailVerifyQueue, Payload: []byte("nope")},
		MockQueueItem{QID: MailVerifyQueue, Payload: mustJSON(t, VerificationMail{To: "fail@b.io"})},
		MockQueueItem{QID: MailVerifyQueue, Payload: mustJSON(t, mail)},
	)}

	sent := make(chan VerificationMail, 3)
	mailer := &MockMailer{SendVerificationFunc: func(ctx context.Context, m VerificationMail) error {
		if m.To == "fail@b.io" {
			return errors.New("smtp down")
		}
		sent <- m
		return nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- NewMailConsumer(zap.NewNop(), q, mailer).Consume(ctx, MailVerifyQueue)
	}()

	select {
	case got := <-sent:
		assert.Equal(t, mail, got)
	case <-time.After(2 * time.Second):
		t.Fatal("mail not delivered")
	}
	cancel()
	assert.NoError(t, <-done)
}

func TestNewMailer(t *testing.T) {
	_, ok := NewMailer(zap.NewNop(), &MailConfig{}).(*logMailer)
	assert.True(t, ok)
	assert.NoError(t, NewMailer(zap.NewNop(), &MailConfig{}).SendVerification(context.Background(), VerificationMail{To: "a@b.io", Code: "1"}))

	_, ok = NewMailer(zap.NewNop(), &MailConfig{Host: "smtp.example.org", Port: "587"}).(*smtpMailer)
	assert.True(t, ok)
}

func TestSMTPMailer(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	var gotAuth smtp.Auth
	sm := &smtpMailer{
		logger: zap.NewNop(),
		config: &MailConfig{Host: "smtp.example.org", Port: "587", Username: "u", Password: "p", From: "noreply@example.org"},
		send: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, msg
			return nil
		},
	}

	mail := VerificationMail{To: "a@b.io", Firstname: "Ada", Code: "123456"}
	require.NoError(t, sm.SendVerification(context.Background(), mail))
	assert.Equal(t, "smtp.example.org:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "noreply@example.org", gotFrom)
	assert.Equal(t, []string{"a@b.io"}, gotTo)
	assert.Contains(t, string(gotMsg), "To: a@b.io\r\n")
	assert.Contains(t, string(gotMsg), "Hello Ada,")
	assert.Contains(t, string(gotMsg), "Your verification code is 123456.")

	sm.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }
	assert.ErrorContains(t, sm.SendVerification(context.Background(), mail), "smtp: refused")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sm.SendVerification(ctx, mail), context.Canceled)
}

func TestRateLimiterEvict(t *testing.T) {
	clock := NewMockClocker()
	rl := NewRateLimiter(zap.NewNop(), clock, 1, 1)
	assert.True(t, rl.Allow("192.0.2.1"))
	assert.False(t, rl.Allow("192.0.2.1"))

	clock.MockNow = clock.Now().Add(time.Minute)
	assert.True(t, rl.Allow("192.0.2.2"))

	assert.Equal(t, 1, rl.evict(clock.Now().Add(limiterIdleTTL+time.Second-time.Minute)))
	assert.Len(t, rl.visitors, 1)
	assert.Equal(t, 1, rl.evict(clock.Now().Add(limiterIdleTTL+time.Second)))
	assert.Empty(t, rl.visitors)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, rl.Cleanup(ctx))
}
