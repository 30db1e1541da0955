package events_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockowitz/ddcutil-sub002/events"
	"github.com/rockowitz/ddcutil-sub002/registry"
)

func TestImmediateDeliversSynchronouslyToAllSinks(t *testing.T) {
	p := events.New()
	var got1, got2 []events.Event
	p.Subscribe(func(e events.Event) { got1 = append(got1, e) })
	p.Subscribe(func(e events.Event) { got2 = append(got2, e) })

	ev := events.Event{Kind: events.Connected, IOPath: registry.IOPath{Kind: "i2c", Busno: 6}}
	p.Immediate(ev)

	require.Len(t, got1, 1)
	require.Len(t, got2, 1)
	assert.Equal(t, events.Connected, got1[0].Kind)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	p := events.New()
	var count int
	id := p.Subscribe(func(events.Event) { count++ })
	p.Immediate(events.Event{Kind: events.Connected})
	p.Unsubscribe(id)
	p.Immediate(events.Event{Kind: events.Connected})
	assert.Equal(t, 1, count)
}

func TestEnqueueThenDrainDeliversInFIFOOrder(t *testing.T) {
	p := events.New()
	var order []int
	p.Subscribe(func(e events.Event) { order = append(order, e.IOPath.Busno) })

	p.Enqueue(events.Event{IOPath: registry.IOPath{Busno: 1}})
	p.Enqueue(events.Event{IOPath: registry.IOPath{Busno: 2}})
	p.Enqueue(events.Event{IOPath: registry.IOPath{Busno: 3}})

	assert.Equal(t, 3, p.Pending())
	p.Drain()
	assert.Equal(t, 0, p.Pending())
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestDrainIsIdempotentWhenEmpty(t *testing.T) {
	p := events.New()
	called := false
	p.Subscribe(func(events.Event) { called = true })
	p.Drain()
	assert.False(t, called)
}

func TestFilterCanVetoAnEvent(t *testing.T) {
	p := events.New()
	p.Filter = func(e events.Event) (events.Event, bool) {
		return e, e.IOPath.Busno != 6
	}
	var got []events.Event
	p.Subscribe(func(e events.Event) { got = append(got, e) })

	p.Immediate(events.Event{IOPath: registry.IOPath{Busno: 6}})
	p.Immediate(events.Event{IOPath: registry.IOPath{Busno: 7}})

	require.Len(t, got, 1)
	assert.Equal(t, 7, got[0].IOPath.Busno)
}
