package auditctx

import (
	"context"
	"errors"
	"sync"
)

// ErrStackUnderflow reports a Pop without a matching Push.
var ErrStackUnderflow = errors.New("auditctx: pop without matching push")

// Frame is a scoped override of the acting user, reason, and
// impersonator. Empty strings mean unset.
type Frame struct {
	ActorID        string
	Reason         string
	ImpersonatedBy string
}

// Effective is the context consulted when writing audit rows: the top
// frame merged with the identity-resolution callback.
type Effective struct {
	ActorID        string
	Reason         string
	ImpersonatedBy string
}

// Resolver supplies the acting user when no frame sets one explicitly.
type Resolver func(ctx context.Context) string

type frameKey struct{}

// WithFrame pushes a frame onto the context. The previous frame is
// restored simply by using the parent context again.
func WithFrame(ctx context.Context, f Frame) context.Context {
	return context.WithValue(ctx, frameKey{}, f)
}

// FromContext returns the current frame, if any.
func FromContext(ctx context.Context) (Frame, bool) {
	f, ok := ctx.Value(frameKey{}).(Frame)
	return f, ok
}

// Scope runs fn with f pushed. The frame is only visible inside fn; the
// caller's context is untouched on every exit path, including when fn
// returns an error or panics.
func Scope(ctx context.Context, f Frame, fn func(ctx context.Context) error) error {
	return fn(WithFrame(ctx, f))
}

// Current merges the top frame with the resolver. The resolver is
// invoked only when no frame supplies an acting user.
func Current(ctx context.Context, r Resolver) Effective {
	f, _ := FromContext(ctx)
	return resolve(ctx, f, r)
}

func resolve(ctx context.Context, f Frame, r Resolver) Effective {
	eff := Effective{
		ActorID:        f.ActorID,
		Reason:         f.Reason,
		ImpersonatedBy: f.ImpersonatedBy,
	}
	if eff.ActorID == "" && r != nil {
		eff.ActorID = r(ctx)
	}
	return eff
}

// Stack is an explicit frame stack for hosts that manage audit scopes
// imperatively rather than through derived contexts. A Stack belongs to
// one logical unit of work; it must not be shared across concurrently
// executing units.
type Stack struct {
	mu     sync.Mutex
	frames []Frame
}

// Push adds a frame.
func (s *Stack) Push(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
}

// Pop removes and returns the top frame. Popping an empty stack returns
// ErrStackUnderflow.
func (s *Stack) Pop() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return Frame{}, ErrStackUnderflow
	}
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return f, nil
}

// Top returns the top frame without removing it.
func (s *Stack) Top() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return Frame{}, false
	}
	return s.frames[len(s.frames)-1], true
}

// Depth returns the number of frames.
func (s *Stack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Scope pushes f, runs fn, and pops on every exit path.
func (s *Stack) Scope(f Frame, fn func() error) error {
	s.Push(f)
	defer s.Pop() //nolint:errcheck // the matching push is two lines up
	return fn()
}

// Current merges the stack's top frame with the resolver.
func (s *Stack) Current(ctx context.Context, r Resolver) Effective {
	f, _ := s.Top()
	return resolve(ctx, f, r)
}
