// Package workerpool keeps a bounded set of long-lived, per-account sessions
// and runs actions on them one at a time per account.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"linkedin-outreach/internal/config"
	"linkedin-outreach/internal/failure"
	"linkedin-outreach/internal/models"
	"linkedin-outreach/internal/proxy"
)

// Request describes one action to run against the target site
type Request struct {
	ActionID   string
	AccountID  string
	Method     models.Method
	ProfileURL string
	Message    string
	Subject    string
}

// Result is what the session reports for a successful action
type Result struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// Session is one authenticated automation session bound to an account
type Session interface {
	Execute(ctx context.Context, req Request) (*Result, error)
	Alive(ctx context.Context) error
	Close() error
}

// SessionFactory builds sessions for accounts
type SessionFactory interface {
	NewSession(ctx context.Context, account *models.Account, p *models.ProxyResource) (Session, error)
}

// AccountStore is the account persistence the pool needs
type AccountStore interface {
	Get(id string) (*models.Account, error)
	SetSessionValid(id string, valid bool) error
}

// ProxyAllocator is the egress assignment the pool needs
type ProxyAllocator interface {
	GetProxyForAccount(accountID, region string) (*models.ProxyResource, error)
	ReleaseProxyForAccount(accountID string)
	ReportProxyIssue(proxyID, description string) (bool, error)
}

// Stats is a point-in-time view of the pool
type Stats struct {
	Workers    int      `json:"workers"`
	Busy       int      `json:"busy"`
	MaxWorkers int      `json:"max_workers"`
	Accounts   []string `json:"accounts"`
}

type worker struct {
	accountID string
	session   Session
	proxyID   string

	// slot holds one token while a session call runs, including calls
	// whose caller already gave up on a timeout
	slot     chan struct{}
	ready    chan struct{}
	initErr  error
	refs     int
	lastUsed time.Time
}

func (w *worker) idle() bool {
	select {
	case <-w.ready:
	default:
		return false
	}
	return w.initErr == nil && w.refs == 0 && len(w.slot) == 0
}

type callOutcome struct {
	res *Result
	err error
}

// interrupted reports a bare context error, which a session returns when its
// call was cancelled rather than when the action itself failed
func (o callOutcome) interrupted() bool {
	if o.err == nil {
		return false
	}
	var fe *failure.Error
	if errors.As(o.err, &fe) {
		return false
	}
	return errors.Is(o.err, context.Canceled) || errors.Is(o.err, context.DeadlineExceeded)
}

// Pool runs actions on per-account workers
type Pool struct {
	logger       zerolog.Logger
	cfg          config.WorkersConfig
	requireProxy bool
	factory      SessionFactory
	accounts     AccountStore
	proxies      ProxyAllocator

	mu      sync.Mutex
	workers map[string]*worker
	closing int
	closed  bool
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	calls  sync.WaitGroup
	bg     sync.WaitGroup
}

// New creates a pool and starts its idle sweep
func New(cfg config.WorkersConfig, requireProxy bool, factory SessionFactory, accounts AccountStore, proxies ProxyAllocator, logger zerolog.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		logger:       logger.With().Str("module", "workerpool").Logger(),
		cfg:          cfg,
		requireProxy: requireProxy,
		factory:      factory,
		accounts:     accounts,
		proxies:      proxies,
		workers:      make(map[string]*worker),
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
	}

	p.bg.Add(1)
	go p.sweep()

	return p
}

// SetClock replaces the time source used for idle tracking
func (p *Pool) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// ExecuteAction runs one request on the account's worker, building it when needed.
// Calls for the same account never overlap; calls for different accounts run
// concurrently up to the configured number of workers.
func (p *Pool) ExecuteAction(ctx context.Context, req Request) (*Result, error) {
	if !p.enter() {
		return nil, failure.Errorf(failure.Shutdown, "execute", "worker pool is shut down")
	}
	defer p.calls.Done()

	w, err := p.acquire(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	defer p.release(w)

	select {
	case w.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, failure.New(failure.ClassOf(ctx.Err()), "execute", ctx.Err())
	case <-p.ctx.Done():
		return nil, failure.Errorf(failure.Shutdown, "execute", "worker pool is shut down")
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.ActionTimeout)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	done := make(chan callOutcome, 1)

	go func() {
		defer func() { <-w.slot }()
		res, err := w.session.Execute(callCtx, req)
		done <- callOutcome{res: res, err: err}
	}()

	var (
		res         *Result
		interrupted bool
	)
	select {
	case o := <-done:
		res, err, interrupted = o.res, o.err, o.interrupted()
	case <-callCtx.Done():
		// the session may have finished as the context ended
		select {
		case o := <-done:
			res, err, interrupted = o.res, o.err, o.interrupted()
		default:
			err, interrupted = callCtx.Err(), true
		}
	}

	// A call cut short by its context is reported by why the context ended
	if interrupted {
		switch {
		case p.ctx.Err() != nil:
			err = failure.Errorf(failure.Shutdown, "execute", "worker pool is shut down")
		case ctx.Err() != nil:
			err = failure.New(failure.ClassOf(ctx.Err()), "execute", ctx.Err())
		default:
			err = failure.Errorf(failure.Timeout, "execute", "action %s exceeded %s", req.Method, p.cfg.ActionTimeout)
		}
	}

	if err != nil {
		return nil, p.handleError(w, req, err)
	}

	return res, nil
}

// handleError classifies a session error and applies its worker-level consequences
func (p *Pool) handleError(w *worker, req Request, err error) error {
	var fe *failure.Error
	if !errors.As(err, &fe) {
		err = failure.New(failure.Transient, "execute", err)
	}
	class := failure.ClassOf(err)

	log := p.logger.Warn().
		Err(err).
		Str("accountId", req.AccountID).
		Str("actionId", req.ActionID).
		Str("method", string(req.Method)).
		Str("class", string(class))

	if class == failure.ProxyIssue && w.proxyID != "" {
		blacklisted, rerr := p.proxies.ReportProxyIssue(w.proxyID, err.Error())
		if rerr != nil {
			p.logger.Warn().Err(rerr).Str("proxyId", w.proxyID).Msg("Failed to report proxy issue")
		}
		// the next call rebuilds the worker on another proxy
		if blacklisted {
			log.Str("proxyId", w.proxyID).Msg("Proxy blacklisted, evicting worker")
			p.evict(w)
			return err
		}
	}

	if class.EvictsWorker() {
		log.Msg("Session-critical failure, evicting worker")
		if serr := p.accounts.SetSessionValid(req.AccountID, false); serr != nil {
			p.logger.Warn().Err(serr).Str("accountId", req.AccountID).Msg("Failed to mark session invalid")
		}
		p.evict(w)
		return err
	}

	log.Msg("Action failed")
	return err
}

func (p *Pool) enter() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.calls.Add(1)
	return true
}

// acquire returns a ready worker for the account with a reference held
func (p *Pool) acquire(ctx context.Context, accountID string) (*worker, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, failure.Errorf(failure.Shutdown, "acquire", "worker pool is shut down")
		}

		if w, ok := p.workers[accountID]; ok {
			w.refs++
			p.mu.Unlock()
			return p.awaitReady(ctx, w)
		}

		if len(p.workers)+p.closing < p.cfg.MaxWorkers {
			w := &worker{
				accountID: accountID,
				slot:      make(chan struct{}, 1),
				ready:     make(chan struct{}),
				refs:      1,
				lastUsed:  p.now(),
			}
			p.workers[accountID] = w
			p.mu.Unlock()

			p.initialize(w)
			return p.awaitReady(ctx, w)
		}

		if victim := p.lruIdleLocked(); victim != nil {
			delete(p.workers, victim.accountID)
			p.closing++
			p.mu.Unlock()

			p.logger.Info().
				Str("accountId", victim.accountID).
				Str("for", accountID).
				Msg("Evicting least recently used worker")
			p.teardown(victim)

			p.mu.Lock()
			p.closing--
			p.mu.Unlock()
			continue
		}
		p.mu.Unlock()

		p.logger.Debug().Str("accountId", accountID).Msg("All workers busy, waiting")
		select {
		case <-time.After(p.cfg.AcquireRetryInterval):
		case <-ctx.Done():
			return nil, failure.New(failure.ClassOf(ctx.Err()), "acquire", ctx.Err())
		case <-p.ctx.Done():
			return nil, failure.Errorf(failure.Shutdown, "acquire", "worker pool is shut down")
		}
	}
}

func (p *Pool) awaitReady(ctx context.Context, w *worker) (*worker, error) {
	select {
	case <-w.ready:
	case <-ctx.Done():
		p.release(w)
		return nil, failure.New(failure.ClassOf(ctx.Err()), "acquire", ctx.Err())
	case <-p.ctx.Done():
		p.release(w)
		return nil, failure.Errorf(failure.Shutdown, "acquire", "worker pool is shut down")
	}

	if w.initErr != nil {
		p.release(w)
		return nil, w.initErr
	}
	return w, nil
}

// initialize loads the account, assigns a proxy and opens a validated session
func (p *Pool) initialize(w *worker) {
	defer close(w.ready)

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.ActionTimeout)
	defer cancel()

	log := p.logger.With().Str("accountId", w.accountID).Logger()

	fail := func(err error) {
		class := failure.ClassOf(err)
		if class != failure.SessionInvalid && class != failure.Shutdown {
			err = failure.New(failure.WorkerInit, "initialize", err)
		}
		w.initErr = err

		p.mu.Lock()
		if p.workers[w.accountID] == w {
			delete(p.workers, w.accountID)
		}
		p.mu.Unlock()

		log.Error().Err(err).Msg("Worker initialization failed")
	}

	account, err := p.accounts.Get(w.accountID)
	if err != nil {
		fail(err)
		return
	}
	if account == nil {
		fail(fmt.Errorf("account %s not found", w.accountID))
		return
	}

	px, err := p.proxies.GetProxyForAccount(account.ID, account.Region)
	if err != nil {
		if !errors.Is(err, proxy.ErrNoProxyAvailable) || p.requireProxy {
			fail(err)
			return
		}
		log.Warn().Err(err).Msg("No proxy available, using direct egress")
	}
	if px != nil {
		w.proxyID = px.ID
	}

	session, err := p.factory.NewSession(ctx, account, px)
	if err != nil {
		p.onInitFailure(w, err)
		fail(err)
		return
	}

	if err := session.Alive(ctx); err != nil {
		if cerr := session.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close rejected session")
		}
		p.onInitFailure(w, err)
		fail(err)
		return
	}

	if !account.SessionValid {
		if err := p.accounts.SetSessionValid(account.ID, true); err != nil {
			log.Warn().Err(err).Msg("Failed to mark session valid")
		}
	}

	w.session = session
	log.Info().Str("proxyId", w.proxyID).Msg("Worker ready")
}

func (p *Pool) onInitFailure(w *worker, err error) {
	switch failure.ClassOf(err) {
	case failure.ProxyIssue:
		if w.proxyID != "" {
			if _, rerr := p.proxies.ReportProxyIssue(w.proxyID, err.Error()); rerr != nil {
				p.logger.Warn().Err(rerr).Str("proxyId", w.proxyID).Msg("Failed to report proxy issue")
			}
		}
	case failure.SessionInvalid:
		if serr := p.accounts.SetSessionValid(w.accountID, false); serr != nil {
			p.logger.Warn().Err(serr).Str("accountId", w.accountID).Msg("Failed to mark session invalid")
		}
	}
	if w.proxyID != "" {
		p.proxies.ReleaseProxyForAccount(w.accountID)
	}
}

func (p *Pool) release(w *worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w.refs--
	w.lastUsed = p.now()
}

func (p *Pool) lruIdleLocked() *worker {
	var victim *worker
	for _, w := range p.workers {
		if !w.idle() {
			continue
		}
		if victim == nil || w.lastUsed.Before(victim.lastUsed) {
			victim = w
		}
	}
	return victim
}

// evict removes the worker from the pool and tears it down in the background
func (p *Pool) evict(w *worker) {
	p.mu.Lock()
	if p.workers[w.accountID] != w {
		p.mu.Unlock()
		return
	}
	delete(p.workers, w.accountID)
	p.closing++
	p.mu.Unlock()

	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		p.teardown(w)

		p.mu.Lock()
		p.closing--
		p.mu.Unlock()
	}()
}

// teardown waits for any running call to finish, then closes the session and frees the proxy
func (p *Pool) teardown(w *worker) {
	select {
	case w.slot <- struct{}{}:
		defer func() { <-w.slot }()
	case <-time.After(p.cfg.ActionTimeout):
		p.logger.Warn().Str("accountId", w.accountID).Msg("Closing worker with a call still running")
	}

	if w.session != nil {
		if err := w.session.Close(); err != nil {
			p.logger.Warn().Err(err).Str("accountId", w.accountID).Msg("Failed to close session")
		}
	}
	if w.proxyID != "" {
		p.proxies.ReleaseProxyForAccount(w.accountID)
	}

	p.logger.Info().Str("accountId", w.accountID).Msg("Worker torn down")
}

func (p *Pool) sweep() {
	defer p.bg.Done()

	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.SweepIdle()
		}
	}
}

// SweepIdle tears down workers that have been idle longer than the configured maximum
func (p *Pool) SweepIdle() int {
	p.mu.Lock()
	now := p.now()
	var stale []*worker
	for id, w := range p.workers {
		if w.idle() && now.Sub(w.lastUsed) > p.cfg.MaxIdleTime {
			delete(p.workers, id)
			p.closing++
			stale = append(stale, w)
		}
	}
	p.mu.Unlock()

	for _, w := range stale {
		p.logger.Info().Str("accountId", w.accountID).Msg("Tearing down idle worker")
		p.teardown(w)
		p.mu.Lock()
		p.closing--
		p.mu.Unlock()
	}

	return len(stale)
}

// Stats returns the number of live and busy workers
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{Workers: len(p.workers), MaxWorkers: p.cfg.MaxWorkers}
	for id, w := range p.workers {
		s.Accounts = append(s.Accounts, id)
		if w.refs > 0 || len(w.slot) > 0 {
			s.Busy++
		}
	}
	return s
}

// Close rejects in-flight calls with a shutdown error and tears down every worker
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.calls.Wait()

	p.mu.Lock()
	workers := make([]*worker, 0, len(p.workers))
	for id, w := range p.workers {
		workers = append(workers, w)
		delete(p.workers, id)
	}
	p.mu.Unlock()

	for _, w := range workers {
		<-w.ready
		p.teardown(w)
	}
	p.bg.Wait()

	p.logger.Info().Int("workers", len(workers)).Msg("Worker pool closed")
}
