package inputrelay

import "go.uber.org/atomic"

// atomicBool wraps go.uber.org/atomic's Bool, mirroring the cppla-moto
// retrieval-pack repo's use of go.uber.org/atomic. It backs the
// session-active flag; stop is signalled by closing a channel.
type atomicBool struct {
	v atomic.Bool
}

func (b *atomicBool) get() bool    { return b.v.Load() }
func (b *atomicBool) set(v bool)   { b.v.Store(v) }
