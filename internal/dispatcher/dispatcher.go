// Package dispatcher is the hub's TCP front end: an accept loop, an
// in-memory request queue, and the request-processor goroutine that
// routes mutating methods to the durable transaction queue (replying
// "ok" immediately) and synchronous read/admin methods straight back to
// the caller. Connection admission is bounded by a semaphore so a
// connection storm can't spawn unbounded per-connection goroutines.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/daniel-olson-code/buelon/internal/blob"
	"github.com/daniel-olson-code/buelon/internal/executor"
	"github.com/daniel-olson-code/buelon/internal/logger"
	"github.com/daniel-olson-code/buelon/internal/metadata"
	"github.com/daniel-olson-code/buelon/internal/scheduler"
	"github.com/daniel-olson-code/buelon/internal/txqueue"
	"github.com/daniel-olson-code/buelon/internal/wire"
)

var mutatingMethods = map[string]bool{
	"done": true, "pending": true, "cancel": true, "reset": true,
	"error": true, "upload-step": true, "upload-steps": true, "reset-errors": true,
}

var readMethods = map[string]bool{
	"get-steps": true, "step-count": true, "fetch-errors": true,
	"fetch-rows": true, "delete-steps": true,
}

type inflightRequest struct {
	conn       net.Conn
	method     string
	body       []byte
	receivedAt time.Time
}

type Dispatcher struct {
	repo  metadata.Repo
	store blob.Store
	sched *scheduler.Scheduler
	exec  *executor.Executor
	queue *txqueue.Queue
	log   *logger.Logger

	sem   *semaphore.Weighted
	reqCh chan inflightRequest
}

func New(repo metadata.Repo, store blob.Store, sched *scheduler.Scheduler, exec *executor.Executor, queue *txqueue.Queue, acceptBacklog int, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		repo:  repo,
		store: store,
		sched: sched,
		exec:  exec,
		queue: queue,
		log:   log.With("component", "dispatcher"),
		sem:   semaphore.NewWeighted(int64(acceptBacklog)),
		reqCh: make(chan inflightRequest, acceptBacklog),
	}
}

// Listen binds the TCP port, retrying up to 5 times with a 5*attempt
// second backoff on EADDRINUSE.
func Listen(host, port string) (net.Listener, error) {
	addr := net.JoinHostPort(host, port)
	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		lastErr = err
		if !isAddrInUse(err) {
			return nil, err
		}
		time.Sleep(time.Duration(5*attempt) * time.Second)
	}
	return nil, fmt.Errorf("dispatcher: bind %s: %w", addr, lastErr)
}

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

// AcceptLoop blocks accepting connections until ctx is cancelled, spawning
// a bounded number of per-connection read handlers.
func (d *Dispatcher) AcceptLoop(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("dispatcher: accept: %w", err)
		}
		if err := d.sem.Acquire(ctx, 1); err != nil {
			_ = conn.Close()
			return nil
		}
		go d.handleConn(ctx, conn)
	}
}

func (d *Dispatcher) handleConn(ctx context.Context, conn net.Conn) {
	defer d.sem.Release(1)
	r := wire.NewReader(conn)
	payload, err := r.ReadFrame()
	if err != nil {
		// reply nothing, close connection — the only contract for a
		// malformed or truncated frame.
		_ = conn.Close()
		return
	}
	req, err := wire.DecodeRequest(payload)
	if err != nil {
		_ = conn.Close()
		return
	}
	select {
	case d.reqCh <- inflightRequest{conn: conn, method: req.Method, body: req.Body, receivedAt: time.Now()}:
	case <-ctx.Done():
		_ = conn.Close()
	}
}

// ProcessLoop is the single request-processor goroutine: it pulls from
// the in-memory request queue, enqueues mutating methods onto the
// durable transaction queue (acking "ok" immediately), and executes
// read/admin methods synchronously.
func (d *Dispatcher) ProcessLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-d.reqCh:
			d.process(ctx, req)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, req inflightRequest) {
	defer req.conn.Close()

	if mutatingMethods[req.method] {
		if err := d.queue.Enqueue(ctx, req.method, req.body); err != nil {
			d.log.Error("failed to enqueue mutation", "method", req.method, "error", err)
			d.reply(req.conn, errorResponse(err))
			return
		}
		d.reply(req.conn, []byte(`"ok"`))
		return
	}

	if readMethods[req.method] {
		resp, err := d.handleRead(ctx, req.method, req.body)
		if err != nil {
			d.reply(req.conn, errorResponse(err))
			return
		}
		d.reply(req.conn, resp)
		return
	}

	d.reply(req.conn, errorResponse(fmt.Errorf("unknown method %q", req.method)))
}

func (d *Dispatcher) reply(conn net.Conn, payload []byte) {
	_, _ = conn.Write(wire.EncodeFrame(payload))
}

func errorResponse(err error) []byte {
	return []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
}

// ExecutorLoop redelivers any pending entries left over from a crash,
// then drains the transaction queue one entry at a time, applying each
// mutation and acking it only after a successful apply.
func (d *Dispatcher) ExecutorLoop(ctx context.Context) error {
	pending, err := d.queue.ClaimPending(ctx, 0)
	if err != nil {
		d.log.Warn("failed to claim pending transaction queue entries", "error", err)
	}
	for _, delivery := range pending {
		d.applyAndAck(ctx, delivery)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		deliveries, err := d.queue.Read(ctx, 16, 2*time.Second)
		if err != nil {
			d.log.Warn("transaction queue read failed", "error", err)
			continue
		}
		for _, delivery := range deliveries {
			d.applyAndAck(ctx, delivery)
		}
	}
}

func (d *Dispatcher) applyAndAck(ctx context.Context, delivery txqueue.Delivery) {
	if err := applyMutation(ctx, d.exec, delivery.Entry.Method, delivery.Entry.Body); err != nil {
		d.log.Error("mutation apply failed", "method", delivery.Entry.Method, "id", delivery.ID, "error", err)
		// apply is idempotent by construction; ack anyway so a
		// permanently-malformed entry does not wedge the queue forever.
	}
	if err := d.queue.Ack(ctx, delivery.ID); err != nil {
		d.log.Error("ack failed", "id", delivery.ID, "error", err)
	}
}
