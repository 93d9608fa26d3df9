package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/model"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to model.OrderStatus }{
		{model.StatusCreated, model.StatusPaid},
		{model.StatusCreated, model.StatusCancelled},
		{model.StatusPaid, model.StatusShipped},
		{model.StatusPaid, model.StatusCancelled},
		{model.StatusPaid, model.StatusRefunded},
		{model.StatusShipped, model.StatusDelivered},
		{model.StatusShipped, model.StatusRefunded},
	}
	for _, tc := range allowed {
		assert.True(t, model.CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct{ from, to model.OrderStatus }{
		{model.StatusCreated, model.StatusShipped},
		{model.StatusCreated, model.StatusDelivered},
		{model.StatusCreated, model.StatusRefunded},
		{model.StatusPaid, model.StatusCreated},
		{model.StatusShipped, model.StatusCancelled},
		{model.StatusDelivered, model.StatusRefunded},
		{model.StatusCancelled, model.StatusPaid},
		{model.StatusRefunded, model.StatusCreated},
		{model.StatusPaid, "TELEPORTED"},
		{"TELEPORTED", model.StatusPaid},
	}
	for _, tc := range denied {
		assert.False(t, model.CanTransition(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestTerminalStatusesHaveNoEdges(t *testing.T) {
	terminal := []model.OrderStatus{model.StatusDelivered, model.StatusCancelled, model.StatusRefunded}
	all := []model.OrderStatus{
		model.StatusCreated, model.StatusPaid, model.StatusShipped,
		model.StatusDelivered, model.StatusCancelled, model.StatusRefunded,
	}
	for _, from := range terminal {
		for _, to := range all {
			assert.False(t, model.CanTransition(from, to), "%s must be terminal", from)
		}
	}
}

func TestValidStatus(t *testing.T) {
	assert.True(t, model.ValidStatus(model.StatusCreated))
	assert.True(t, model.ValidStatus(model.StatusRefunded))
	assert.False(t, model.ValidStatus("TELEPORTED"))
	assert.False(t, model.ValidStatus(""))
}

func TestReservationStateTerminal(t *testing.T) {
	assert.False(t, model.ReservationActive.Terminal())
	assert.True(t, model.ReservationConfirmed.Terminal())
	assert.True(t, model.ReservationReleased.Terminal())
	assert.True(t, model.ReservationExpired.Terminal())
}
