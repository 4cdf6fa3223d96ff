package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestBusPublishReachesSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var received []*Event
	bus.Subscribe(FundsDeployed, func(e *Event) {
		received = append(received, e)
	})

	bus.Publish(FundsDeployed, "allocation", map[string]interface{}{
		"asset":  "USDC",
		"amount": "1000",
	})

	assert.Len(t, received, 1)
	assert.Equal(t, FundsDeployed, received[0].Type)
	assert.Equal(t, "allocation", received[0].Module)
	assert.Equal(t, "USDC", received[0].Data["asset"])
}

func TestBusIgnoresUnrelatedEventTypes(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	calls := 0
	bus.Subscribe(HarvestCompleted, func(e *Event) { calls++ })

	bus.Publish(FundsDeployed, "allocation", nil)
	assert.Equal(t, 0, calls)

	bus.Publish(HarvestCompleted, "allocation", nil)
	assert.Equal(t, 1, calls)
}

func TestBusMultipleSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	first, second := 0, 0
	bus.Subscribe(RoleGranted, func(e *Event) { first++ })
	bus.Subscribe(RoleGranted, func(e *Event) { second++ })

	bus.Publish(RoleGranted, "auth", map[string]interface{}{"role": "agent"})

	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}
