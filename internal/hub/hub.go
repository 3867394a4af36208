// Package hub wires together the coordination hub's components and owns
// its top-level lifecycle: New constructs every dependency, Start
// launches the three long-lived workers under one errgroup and blocks
// until they all exit, and Close releases connections.
package hub

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/daniel-olson-code/buelon/internal/adminhttp"
	"github.com/daniel-olson-code/buelon/internal/blob"
	"github.com/daniel-olson-code/buelon/internal/config"
	"github.com/daniel-olson-code/buelon/internal/dispatcher"
	"github.com/daniel-olson-code/buelon/internal/executor"
	"github.com/daniel-olson-code/buelon/internal/governor"
	"github.com/daniel-olson-code/buelon/internal/logger"
	"github.com/daniel-olson-code/buelon/internal/metadata"
	"github.com/daniel-olson-code/buelon/internal/scheduler"
	"github.com/daniel-olson-code/buelon/internal/txqueue"
)

type Hub struct {
	Log    *logger.Logger
	Config config.Config

	Repo  metadata.Repo
	Store blob.Store
	Gov   *governor.Governor
	Queue *txqueue.Queue
	Disp  *dispatcher.Dispatcher
}

func New(ctx context.Context, log *logger.Logger) (*Hub, error) {
	cfg := config.LoadConfig(log)

	db, err := metadata.Open(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("hub: open metadata store: %w", err)
	}
	repo := metadata.NewRepo(db)

	store, err := blob.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("hub: open blob store: %w", err)
	}

	gov := governor.New(cfg.TagVelocity)

	queue, err := txqueue.Open(ctx, cfg.RedisAddr, cfg.RedisStreamKey, cfg.RedisConsumerGroup, "hub-executor", log)
	if err != nil {
		return nil, fmt.Errorf("hub: open transaction queue: %w", err)
	}

	sched := scheduler.New(repo, gov, cfg.LeaseDuration())
	exec := executor.New(repo, store, log)
	disp := dispatcher.New(repo, store, sched, exec, queue, cfg.AcceptBacklog, log)

	return &Hub{
		Log:    log,
		Config: cfg,
		Repo:   repo,
		Store:  store,
		Gov:    gov,
		Queue:  queue,
		Disp:   disp,
	}, nil
}

// Start launches the governor's decrement ticker and the three long-lived
// workers (acceptor, request processor, state-machine executor)
// supervised by one errgroup: a failure in any one of them cancels ctx
// and the others wind down in turn. It blocks until every worker has
// exited.
func (h *Hub) Start(ctx context.Context) error {
	h.Gov.Start()
	defer h.Gov.Stop()

	ln, err := dispatcher.Listen(h.Config.PipelineHost, h.Config.PipelinePort)
	if err != nil {
		return fmt.Errorf("hub: listen: %w", err)
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return h.Disp.AcceptLoop(gctx, ln) })
	group.Go(func() error { return h.Disp.ProcessLoop(gctx) })
	group.Go(func() error { return h.Disp.ExecutorLoop(gctx) })

	var adminSrv *http.Server
	if h.Config.AdminHTTPAddr != "" {
		router := adminhttp.NewRouter(adminhttp.Dependencies{Repo: h.Repo, Store: h.Store, Queue: h.Queue, Gov: h.Gov}, h.Log)
		adminSrv = &http.Server{Addr: h.Config.AdminHTTPAddr, Handler: router}
		group.Go(func() error {
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("hub: admin http server: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-gctx.Done()
			return adminSrv.Close()
		})
	}

	h.Log.Info("hub started", "addr", ln.Addr().String())
	err = group.Wait()
	_ = ln.Close()
	return err
}

func (h *Hub) Close() error {
	if h.Queue != nil {
		return h.Queue.Close()
	}
	return nil
}
