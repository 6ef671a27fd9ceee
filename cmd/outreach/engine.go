package main

import (
	"fmt"
	"math/rand"
	"time"

	"linkedin-outreach/internal/actions"
	"linkedin-outreach/internal/linkedin"
	"linkedin-outreach/internal/notify"
	"linkedin-outreach/internal/proxy"
	"linkedin-outreach/internal/queue"
	"linkedin-outreach/internal/ratelimit"
	"linkedin-outreach/internal/sequence"
	"linkedin-outreach/internal/workerpool"
)

// Engine is the wired action pipeline: queue, limiter, allocator, worker
// pool and action service. Control commands use it without starting the
// consumers; run starts everything.
type Engine struct {
	app *App

	queue     *queue.Queue
	limiter   *ratelimit.Limiter
	allocator *proxy.Allocator
	pool      *workerpool.Pool
	service   *actions.Service

	closeSink func()
}

// NewEngine wires the pipeline over the app's stores
func NewEngine(app *App) (*Engine, error) {
	cfg := app.config

	sink, closeSink, err := notify.Build(cfg.Notify, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build notification sinks: %w", err)
	}

	q := queue.New(app.logger)
	limiter := ratelimit.New(ratelimit.FromConfig(cfg.Limits), app.logger)
	allocator := proxy.NewAllocator(app.proxies, cfg.Proxy, app.logger)

	factory := linkedin.NewFactory(cfg.Browser, cfg.Schedule, app.accounts, app.logger)
	requireProxy := cfg.Proxy.RequireProxy && !allocator.Bypass()
	pool := workerpool.New(cfg.Workers, requireProxy, factory, app.accounts, allocator, app.logger)

	seed := time.Now().UnixNano()
	service := actions.New(cfg.Engine, cfg.Schedule, actions.Deps{
		Campaigns: app.campaigns,
		Sequences: app.sequences,
		Leads:     app.leads,
		Actions:   app.actions,
		Accounts:  app.accounts,
		Queue:     q,
		Executor:  pool,
		Limiter:   limiter,
		Planner:   sequence.NewPlanner(cfg.Engine, rand.New(rand.NewSource(seed))),
		Sink:      sink,
		Rand:      rand.New(rand.NewSource(seed + 1)),
	}, app.logger)

	return &Engine{
		app:       app,
		queue:     q,
		limiter:   limiter,
		allocator: allocator,
		pool:      pool,
		service:   service,
		closeSink: closeSink,
	}, nil
}

// Close stops the pipeline in dependency order: no new results, no sessions, no queue, flushed events
func (e *Engine) Close() {
	e.service.Close()
	e.pool.Close()
	e.queue.Close()
	e.closeSink()
}
