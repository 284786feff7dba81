package randomness

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// endpoint wraps a ChainClient with health tracking.
type endpoint struct {
	client *ChainClient
	url    string

	mu           sync.RWMutex
	healthy      bool
	failCount    int32
	successCount int32
	height       uint64
}

// ChainPool manages multiple chain RPC endpoints with automatic failover,
// so a single unhealthy node cannot stall draw completion.
type ChainPool struct {
	log       *zap.SugaredLogger
	endpoints []*endpoint
	timeout   time.Duration
	activeIdx int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewChainPool builds a pool over the given endpoint URLs.
func NewChainPool(ctx context.Context, log *zap.SugaredLogger, urls []string, timeout time.Duration) *ChainPool {
	poolCtx, cancel := context.WithCancel(ctx)
	p := &ChainPool{log: log, timeout: timeout, ctx: poolCtx, cancel: cancel}
	for _, u := range urls {
		p.endpoints = append(p.endpoints, &endpoint{
			client:  NewChainClient(u, timeout),
			url:     u,
			healthy: true,
		})
	}
	return p
}

// Start begins the background health-check loop.
func (p *ChainPool) Start(interval time.Duration) {
	if len(p.endpoints) == 0 {
		p.log.Warn("randomness: no chain endpoints configured")
		return
	}
	p.checkAll()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				p.checkAll()
			}
		}
	}()
}

// Stop shuts down the health-check loop.
func (p *ChainPool) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *ChainPool) checkAll() {
	var wg sync.WaitGroup
	for _, e := range p.endpoints {
		wg.Add(1)
		go func(e *endpoint) {
			defer wg.Done()
			p.check(e)
		}(e)
	}
	wg.Wait()
	p.selectBest()
}

func (p *ChainPool) check(e *endpoint) {
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	block, err := e.client.GetLatestBlock(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.failCount++
		e.successCount = 0
		if e.failCount >= 3 && e.healthy {
			e.healthy = false
			p.log.Warnw("randomness: endpoint marked unhealthy", "url", e.url, "failures", e.failCount)
		}
		return
	}
	e.successCount++
	e.height = block.Height
	if !e.healthy && e.successCount >= 2 {
		e.healthy = true
		e.failCount = 0
		p.log.Infow("randomness: endpoint recovered", "url", e.url, "height", e.height)
	} else if e.healthy {
		e.failCount = 0
	}
}

func (p *ChainPool) selectBest() {
	best := -1
	var bestHeight uint64
	for i, e := range p.endpoints {
		e.mu.RLock()
		healthy, height := e.healthy, e.height
		e.mu.RUnlock()
		if !healthy {
			continue
		}
		if best < 0 || height > bestHeight {
			best = i
			bestHeight = height
		}
	}
	if best >= 0 {
		atomic.StoreInt32(&p.activeIdx, int32(best))
	}
}

// Active returns the currently preferred client.
func (p *ChainPool) Active() *ChainClient {
	if len(p.endpoints) == 0 {
		return nil
	}
	idx := atomic.LoadInt32(&p.activeIdx)
	if idx >= 0 && int(idx) < len(p.endpoints) {
		return p.endpoints[idx].client
	}
	return p.endpoints[0].client
}

// CallWithFailover runs fn against the active endpoint, retrying against
// every other healthy endpoint before giving up.
func (p *ChainPool) CallWithFailover(fn func(*ChainClient) error) error {
	client := p.Active()
	if client == nil {
		return nil
	}
	lastErr := fn(client)
	if lastErr == nil {
		return nil
	}

	for _, e := range p.endpoints {
		e.mu.RLock()
		healthy := e.healthy
		e.mu.RUnlock()
		if !healthy || e.client == client {
			continue
		}
		if err := fn(e.client); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return lastErr
}
