// Package simulate produces the randomised findings behind every phase.
//
// Nothing here touches the network. Each handler sleeps for a bounded,
// randomised delay (scaled by the configured delay scale and cut short by
// context cancellation) and then draws results from fixed data pools.
package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hakim/scandeck/internal/pipeline"
)

// Simulator is safe for concurrent use by many scans.
type Simulator struct {
	mx    sync.Mutex
	rng   *rand.Rand
	scale float64
	now   func() time.Time
}

type Option func(*Simulator)

// WithSeed makes every draw reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Simulator) { s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithRand injects the random source.
func WithRand(r *rand.Rand) Option {
	return func(s *Simulator) { s.rng = r }
}

// WithDelayScale multiplies every simulated delay. Zero disables delays.
func WithDelayScale(scale float64) Option {
	return func(s *Simulator) { s.scale = max(scale, 0) }
}

// WithClock overrides the time source used for generated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

func New(opts ...Option) *Simulator {
	s := &Simulator{
		scale: 1,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// generator draws a phase outcome. It runs with the simulator lock held and
// may use the rng helpers freely.
type generator func(req pipeline.Request) pipeline.Outcome

// delayFunc returns the unscaled delay of a phase. It runs with the lock held.
type delayFunc func(req pipeline.Request) time.Duration

type phase struct {
	sim   *Simulator
	delay delayFunc
	gen   generator
}

func (p phase) Run(ctx context.Context, req pipeline.Request) (pipeline.Outcome, error) {
	s := p.sim

	s.mx.Lock()
	d := time.Duration(float64(p.delay(req)) * s.scale)
	s.mx.Unlock()

	if err := sleep(ctx, d); err != nil {
		return pipeline.Outcome{}, err
	}

	s.mx.Lock()
	defer s.mx.Unlock()
	out := p.gen(req)
	out.Requests += 10 + s.rng.IntN(50)
	return out, nil
}

func (s *Simulator) handler(delay delayFunc, gen generator) pipeline.Handler {
	return phase{sim: s, delay: delay, gen: gen}
}

// Handlers returns the implementation of every named phase of the built-in
// templates.
func (s *Simulator) Handlers() map[string]pipeline.Handler {
	h := make(map[string]pipeline.Handler)
	s.registerBasic(h)
	s.registerWeb(h)
	s.registerSubdomain(h)
	return h
}

// Default is the stub used for phases without a dedicated handler: a short
// delay and up to two findings, with no results.
func (s *Simulator) Default() pipeline.Handler {
	return s.handler(s.webDelay(1), func(pipeline.Request) pipeline.Outcome {
		return pipeline.Outcome{Findings: s.rng.IntN(3)}
	})
}

// chance reports true with probability p.
func (s *Simulator) chance(p float64) bool {
	return s.rng.Float64() < p
}

// pick keeps each element of pool with probability p.
func pick[T any](s *Simulator, pool []T, p float64) []T {
	out := make([]T, 0, len(pool))
	for _, v := range pool {
		if s.chance(p) {
			out = append(out, v)
		}
	}
	return out
}

func (s *Simulator) ip(prefix string) string {
	if prefix != "" {
		return fmt.Sprintf("%s.%d.%d", prefix, s.rng.IntN(255), s.rng.IntN(255))
	}
	return fmt.Sprintf("%d.%d.%d.%d", s.rng.IntN(255), s.rng.IntN(255), s.rng.IntN(255), s.rng.IntN(255))
}

func (s *Simulator) hex(n int) string {
	const digits = "0123456789abcdef"
	b := make([]byte, n)
	for i := range b {
		b[i] = digits[s.rng.IntN(16)]
	}
	return string(b)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
