package sandbox

import (
	"log/slog"
	"sync"
	"time"
)

// Pool keeps a buffer of pre-built sandboxes so requests skip namespace
// construction cost. Every sandbox is handed out at most once and discarded
// after its execution, so pooling never weakens the per-request isolation
// invariant; it only moves construction off the request path.
type Pool struct {
	registry  *Registry
	logger    *slog.Logger
	sandboxes chan *Sandbox
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewPool creates a pool of the given size over the shared module registry.
func NewPool(registry *Registry, size int, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		registry:  registry,
		logger:    logger,
		sandboxes: make(chan *Sandbox, size),
		done:      make(chan struct{}),
	}
}

// Start begins filling the pool in the background.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting sandbox pool", slog.Int("poolSize", cap(p.sandboxes)))
		p.wg.Add(1)
		go p.manager()
	})
}

// Stop shuts down the manager and drops any pre-built sandboxes. Safe to
// call more than once.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		for {
			select {
			case <-p.sandboxes:
			default:
				return
			}
		}
	})
}

// Get returns a fresh, never-used sandbox. When the pool is empty it builds
// one synchronously rather than blocking the request.
func (p *Pool) Get() (*Sandbox, error) {
	select {
	case s := <-p.sandboxes:
		return s, nil
	default:
		return New(p.registry)
	}
}

func (p *Pool) manager() {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			return
		default:
			if len(p.sandboxes) < cap(p.sandboxes) {
				s, err := New(p.registry)
				if err != nil {
					p.logger.Error("failed to pre-build sandbox", slog.String("error", err.Error()))
					time.Sleep(time.Second)
					continue
				}
				select {
				case p.sandboxes <- s:
				case <-p.done:
					return
				}
			} else {
				time.Sleep(100 * time.Millisecond)
			}
		}
	}
}
