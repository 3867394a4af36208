// Package txqueue is the hub's durable transaction queue: a FIFO outside
// process memory, separate from the in-memory request queue, offering
// at-least-once delivery with idempotent apply expected of the consumer.
// Backed by Redis Streams (XADD/XREADGROUP/XACK/XPENDING/XCLAIM).
//
// Grounded on internal/realtime/bus/redis_bus.go for the client bootstrap
// (REDIS_ADDR, ping-on-connect, a thin wrapper type) but adapted from
// pub/sub to Streams: pub/sub drops messages with no subscriber and
// cannot replay, which violates durability. Streams is the adaptation of
// the same Redis dependency to a durable-queue requirement.
package txqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/daniel-olson-code/buelon/internal/logger"
)

// Entry is one queued mutation: a method name and its raw body, the
// same pair the wire codec decodes off a request frame.
type Entry struct {
	Method string `json:"method"`
	Body   []byte `json:"body"`
}

// Delivery wraps an Entry with the stream message id needed to ack it.
type Delivery struct {
	ID    string
	Entry Entry
}

type Queue struct {
	log     *logger.Logger
	rdb     *goredis.Client
	stream  string
	group   string
	consumer string
}

// Open connects to Redis, verifies reachability, and ensures the
// consumer group exists (MKSTREAM creates the stream on first use).
func Open(ctx context.Context, addr, stream, group, consumer string, log *logger.Logger) (*Queue, error) {
	if addr == "" {
		return nil, fmt.Errorf("txqueue: missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("txqueue: redis ping: %w", err)
	}

	if err := rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err(); err != nil && !alreadyExistsErr(err) {
		_ = rdb.Close()
		return nil, fmt.Errorf("txqueue: create consumer group: %w", err)
	}

	q := &Queue{
		log:      logOrNop(log).With("component", "txqueue"),
		rdb:      rdb,
		stream:   stream,
		group:    group,
		consumer: consumer,
	}
	return q, nil
}

func alreadyExistsErr(err error) bool {
	return err != nil && (containsString(err.Error(), "BUSYGROUP"))
}

func containsString(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func logOrNop(l *logger.Logger) *logger.Logger {
	if l != nil {
		return l
	}
	nop, _ := logger.New("production")
	return nop
}

// Enqueue appends a mutation to the stream. The dispatcher calls this
// after decoding a mutating request and acks the client with "ok"
// immediately afterward, without waiting for the executor to apply it.
func (q *Queue) Enqueue(ctx context.Context, method string, body []byte) error {
	raw, err := json.Marshal(Entry{Method: method, Body: body})
	if err != nil {
		return fmt.Errorf("txqueue: marshal entry: %w", err)
	}
	return q.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{"entry": raw},
	}).Err()
}

// ClaimPending redelivers any entries acknowledged by no one since a
// prior crash, via XPENDING + XCLAIM, before the executor resumes
// reading new entries. Called once at startup.
func (q *Queue) ClaimPending(ctx context.Context, minIdle time.Duration) ([]Delivery, error) {
	pending, err := q.rdb.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: q.stream,
		Group:  q.group,
		Start:  "-",
		End:    "+",
		Count:  1000,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("txqueue: xpending: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	msgs, err := q.rdb.XClaim(ctx, &goredis.XClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("txqueue: xclaim: %w", err)
	}
	return decodeMessages(msgs)
}

// Read blocks (up to block, or indefinitely if block==0) for the next
// batch of new entries delivered to this consumer.
func (q *Queue) Read(ctx context.Context, count int64, block time.Duration) ([]Delivery, error) {
	res, err := q.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("txqueue: xreadgroup: %w", err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	return decodeMessages(res[0].Messages)
}

// Ack marks an entry as durably applied; it will not be redelivered.
func (q *Queue) Ack(ctx context.Context, id string) error {
	return q.rdb.XAck(ctx, q.stream, q.group, id).Err()
}

func decodeMessages(msgs []goredis.XMessage) ([]Delivery, error) {
	out := make([]Delivery, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["entry"]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("txqueue: decode entry %s: %w", m.ID, err)
		}
		out = append(out, Delivery{ID: m.ID, Entry: e})
	}
	return out, nil
}

func (q *Queue) Close() error {
	return q.rdb.Close()
}

// Ping reports whether the underlying redis connection is reachable, for
// readiness checks.
func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}
