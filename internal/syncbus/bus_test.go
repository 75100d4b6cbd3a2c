package syncbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopic(t *testing.T) {
	assert.Equal(t, "canvasFieldUpdate", Topic("canvas"))
}

func TestPublishSkipsOrigin(t *testing.T) {
	bus := New(nil)
	var canvas, form []Update
	bus.Subscribe("canvas", func(u Update) { canvas = append(canvas, u) })
	bus.Subscribe("form", func(u Update) { form = append(form, u) })

	n := bus.Publish(Update{FieldID: "bride_name", Value: "Maria", Origin: "canvas"})
	assert.Equal(t, 1, n)
	assert.Empty(t, canvas)
	require.Len(t, form, 1)
	assert.Equal(t, "Maria", form[0].Value)
}

func TestMirroringSurfacesDoNotStorm(t *testing.T) {
	bus := New(nil)
	state := map[string]map[string]string{"canvas": {}, "form": {}}
	publishes := 0

	// Each surface applies the update and, naively, republishes it as its own.
	for _, surface := range []string{"canvas", "form"} {
		surface := surface
		bus.Subscribe(surface, func(u Update) {
			state[surface][u.FieldID] = u.Value
			publishes++
			bus.Publish(Update{FieldID: u.FieldID, Value: u.Value, Origin: surface})
		})
	}

	bus.Publish(Update{FieldID: "slug", Value: "joao-maria", Origin: "canvas"})
	assert.Equal(t, "joao-maria", state["form"]["slug"])
	assert.Equal(t, 1, publishes, "the echo must be dropped")

	// Once delivery finished the same value can be published again.
	assert.Equal(t, 1, bus.Publish(Update{FieldID: "slug", Value: "joao-maria", Origin: "canvas"}))
}

func TestUnsubscribeRemovesListener(t *testing.T) {
	bus := New(nil)
	calls := 0
	unsub := bus.Subscribe("form", func(Update) { calls++ })
	assert.Equal(t, 1, bus.Subscribers())

	unsub()
	unsub()
	assert.Equal(t, 0, bus.Subscribers())
	assert.Equal(t, 0, bus.Publish(Update{FieldID: "x", Value: "y", Origin: "canvas"}))
	assert.Zero(t, calls)
}

func TestUnsubscribeDuringDelivery(t *testing.T) {
	bus := New(nil)
	var unsub func()
	calls := 0
	unsub = bus.Subscribe("form", func(Update) {
		calls++
		unsub()
	})
	bus.Publish(Update{FieldID: "x", Value: "1", Origin: "canvas"})
	bus.Publish(Update{FieldID: "x", Value: "2", Origin: "canvas"})
	assert.Equal(t, 1, calls)
}

func TestCloseStopsDelivery(t *testing.T) {
	bus := New(nil)
	bus.Subscribe("form", func(Update) { t.Fatal("delivered after close") })
	bus.Close()
	assert.Equal(t, 0, bus.Publish(Update{FieldID: "x", Value: "y", Origin: "canvas"}))
	bus.Subscribe("form", func(Update) { t.Fatal("subscribed after close") })
	assert.Equal(t, 0, bus.Subscribers())
}
