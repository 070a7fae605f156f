package metric

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// StaticProvider serves values from memory. Unknown keys read as zero.
type StaticProvider struct {
	mu     sync.Mutex
	values map[string]decimal.Decimal
	err    error
	calls  int
	last   Range
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{values: make(map[string]decimal.Decimal)}
}

func staticKey(t Type, scope Scope) string {
	return string(t) + "|" + scope.String()
}

func (p *StaticProvider) Set(t Type, scope Scope, value decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[staticKey(t, scope)] = value
}

// SetError makes every following call fail with err until it is reset with nil.
func (p *StaticProvider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *StaticProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *StaticProvider) LastRange() Range {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *StaticProvider) GetValue(ctx context.Context, metricType Type, scope Scope, window Range) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	p.last = window
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	if p.err != nil {
		return decimal.Zero, p.err
	}
	return p.values[staticKey(metricType, scope)], nil
}
