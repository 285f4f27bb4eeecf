package auditctx

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeRestoresParent(t *testing.T) {
	ctx := WithFrame(context.Background(), Frame{ActorID: "parent"})

	err := Scope(ctx, Frame{ActorID: "child", Reason: "inner work"}, func(inner context.Context) error {
		f, ok := FromContext(inner)
		require.True(t, ok)
		assert.Equal(t, "child", f.ActorID)
		assert.Equal(t, "inner work", f.Reason)
		return nil
	})
	require.NoError(t, err)

	f, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "parent", f.ActorID)
	assert.Empty(t, f.Reason)
}

func TestScopeRestoresOnError(t *testing.T) {
	ctx := WithFrame(context.Background(), Frame{ActorID: "parent"})
	boom := errors.New("boom")

	err := Scope(ctx, Frame{ActorID: "child"}, func(inner context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	f, _ := FromContext(ctx)
	assert.Equal(t, "parent", f.ActorID)
}

func TestNestedScopes(t *testing.T) {
	ctx := context.Background()

	err := Scope(ctx, Frame{ActorID: "outer"}, func(outer context.Context) error {
		if err := Scope(outer, Frame{ActorID: "inner", ImpersonatedBy: "outer"}, func(inner context.Context) error {
			f, _ := FromContext(inner)
			assert.Equal(t, "inner", f.ActorID)
			return nil
		}); err != nil {
			return err
		}
		// sibling scope must not see the first child's values
		f, _ := FromContext(outer)
		assert.Equal(t, "outer", f.ActorID)
		assert.Empty(t, f.ImpersonatedBy)
		return nil
	})
	require.NoError(t, err)

	_, ok := FromContext(ctx)
	assert.False(t, ok, "root context has no frame after unwind")
}

func TestCurrentResolverFallback(t *testing.T) {
	resolver := func(ctx context.Context) string { return "session-user" }

	t.Run("frame wins", func(t *testing.T) {
		ctx := WithFrame(context.Background(), Frame{ActorID: "explicit", Reason: "r"})
		eff := Current(ctx, resolver)
		assert.Equal(t, "explicit", eff.ActorID)
		assert.Equal(t, "r", eff.Reason)
	})

	t.Run("resolver fills absent actor", func(t *testing.T) {
		ctx := WithFrame(context.Background(), Frame{Reason: "r", ImpersonatedBy: "ghost"})
		eff := Current(ctx, resolver)
		assert.Equal(t, "session-user", eff.ActorID)
		assert.Equal(t, "r", eff.Reason)
		assert.Equal(t, "ghost", eff.ImpersonatedBy)
	})

	t.Run("no frame no resolver", func(t *testing.T) {
		eff := Current(context.Background(), nil)
		assert.Empty(t, eff.ActorID)
	})
}

func TestConcurrentUnitsAreIsolated(t *testing.T) {
	base := context.Background()

	var wg sync.WaitGroup
	for _, actor := range []string{"alice", "bob", "carol"} {
		actor := actor
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				err := Scope(base, Frame{ActorID: actor}, func(ctx context.Context) error {
					f, ok := FromContext(ctx)
					if !ok || f.ActorID != actor {
						return errors.New("observed foreign frame")
					}
					return nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}

func TestStackPushPop(t *testing.T) {
	var s Stack

	s.Push(Frame{ActorID: "a"})
	s.Push(Frame{ActorID: "b"})
	assert.Equal(t, 2, s.Depth())

	top, ok := s.Top()
	require.True(t, ok)
	assert.Equal(t, "b", top.ActorID)

	f, err := s.Pop()
	require.NoError(t, err)
	assert.Equal(t, "b", f.ActorID)

	f, err = s.Pop()
	require.NoError(t, err)
	assert.Equal(t, "a", f.ActorID)

	_, err = s.Pop()
	assert.ErrorIs(t, err, ErrStackUnderflow)
}

func TestStackScopePopsOnPanic(t *testing.T) {
	var s Stack

	assert.Panics(t, func() {
		_ = s.Scope(Frame{ActorID: "doomed"}, func() error {
			panic("host error")
		})
	})
	assert.Equal(t, 0, s.Depth(), "frame popped despite panic")
}

func TestStackCurrent(t *testing.T) {
	var s Stack
	resolver := func(ctx context.Context) string { return "fallback" }

	eff := s.Current(context.Background(), resolver)
	assert.Equal(t, "fallback", eff.ActorID)

	s.Push(Frame{ActorID: "pushed", Reason: "why"})
	eff = s.Current(context.Background(), resolver)
	assert.Equal(t, "pushed", eff.ActorID)
	assert.Equal(t, "why", eff.Reason)
}
