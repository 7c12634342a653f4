package llm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"edusolve/api/internal/logging"
)

const probeTimeout = 30 * time.Second

type Availability struct {
	Valid bool
	Error string
}

// Checker gates generation on a successful probe. With a zero TTL every call
// probes; otherwise the last result is reused until it expires or
// Invalidate is called.
type Checker struct {
	prober Prober
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	group singleflight.Group

	mu      sync.Mutex
	last    Availability
	expires time.Time
}

func NewChecker(p Prober, ttl time.Duration, logger *zap.Logger) *Checker {
	return &Checker{
		prober: p,
		ttl:    ttl,
		now:    time.Now,
		logger: logging.OrNop(logger),
	}
}

// Check returns an error only when ctx is already done; an unreachable or
// unauthorised endpoint is reported through Availability.
func (c *Checker) Check(ctx context.Context) (Availability, error) {
	if err := ctx.Err(); err != nil {
		return Availability{}, err
	}
	if a, ok := c.cached(); ok {
		return a, nil
	}

	ch := c.group.DoChan("probe", func() (any, error) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
		defer cancel()
		a := c.probe(pctx)
		c.store(a)
		return a, nil
	})
	select {
	case <-ctx.Done():
		return Availability{}, ctx.Err()
	case res := <-ch:
		return res.Val.(Availability), nil
	}
}

// Invalidate drops any cached result so the next Check probes again.
func (c *Checker) Invalidate() {
	c.mu.Lock()
	c.expires = time.Time{}
	c.mu.Unlock()
}

func (c *Checker) probe(ctx context.Context) Availability {
	start := c.now()
	err := c.prober.Probe(ctx)
	if err != nil {
		class := Classify(err)
		c.logger.Warn("availability probe failed",
			zap.String("class", string(class)),
			zap.Duration("took", c.now().Sub(start)),
			zap.Error(err),
		)
		return Availability{Valid: false, Error: class.ProbeMessage()}
	}
	c.logger.Debug("availability probe ok", zap.Duration("took", c.now().Sub(start)))
	return Availability{Valid: true}
}

func (c *Checker) cached() (Availability, bool) {
	if c.ttl <= 0 {
		return Availability{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now().Before(c.expires) {
		return c.last, true
	}
	return Availability{}, false
}

func (c *Checker) store(a Availability) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.last = a
	c.expires = c.now().Add(c.ttl)
	c.mu.Unlock()
}
