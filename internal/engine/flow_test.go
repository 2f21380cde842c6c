package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateFlowWatchKeepsLatest(t *testing.T) {
	f := newStateFlow(1)
	ch, detach := f.watch()
	defer detach()

	f.set(2)
	f.set(3)

	assert.Equal(t, 3, <-ch)
	assert.Equal(t, 3, f.load())
}

func TestStateFlowClose(t *testing.T) {
	f := newStateFlow("a")
	ch, _ := f.watch()

	f.close()
	assert.False(t, f.set("b"))
	assert.Equal(t, "a", f.load())

	v, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = <-ch
	assert.False(t, ok)

	late, _ := f.watch()
	_, ok = <-late
	assert.False(t, ok)
}

func TestStateFlowDetach(t *testing.T) {
	f := newStateFlow(0)
	ch, detach := f.watch()
	<-ch

	detach()
	detach()
	assert.True(t, f.set(1))

	_, ok := <-ch
	assert.False(t, ok)
}

func TestEffectBusDropsWhenFull(t *testing.T) {
	b := newEffectBus(1)
	assert.True(t, b.emit(Effect{Kind: EffectWatchlistAdded}))
	assert.False(t, b.emit(Effect{Kind: EffectWatchlistRemoved}))

	b.close()
	assert.False(t, b.emit(Effect{Kind: EffectWatchlistAdded}))
	assert.Equal(t, EffectWatchlistAdded, (<-b.ch).Kind)
}
