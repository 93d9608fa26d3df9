package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/domain"
)

func TestKindOf(t *testing.T) {
	err := domain.E(domain.KindExhausted, domain.CodeInsufficientFunds, "broke")
	assert.Equal(t, domain.KindExhausted, domain.KindOf(err))

	wrapped := fmt.Errorf("pay order: %w", err)
	assert.Equal(t, domain.KindExhausted, domain.KindOf(wrapped))

	// unknown errors are infrastructure trouble, treated as transient
	assert.Equal(t, domain.KindTransient, domain.KindOf(errors.New("connection reset")))
}

func TestCodeOf(t *testing.T) {
	err := domain.Ef(domain.KindConflict, domain.CodeDuplicateReservation, "order %s", "o-1")
	assert.Equal(t, domain.CodeDuplicateReservation, domain.CodeOf(err))
	assert.Equal(t, "DUPLICATE_RESERVATION: order o-1", err.Error())

	assert.Empty(t, domain.CodeOf(errors.New("nope")))
}

func TestPrincipalCanActOn(t *testing.T) {
	alice := domain.Principal{ID: "alice"}
	assert.True(t, alice.CanActOn("alice"))
	assert.False(t, alice.CanActOn("bob"))

	ops := domain.Principal{ID: "ops", Admin: true}
	assert.True(t, ops.CanActOn("alice"))
	assert.True(t, ops.CanActOn("ops"))
}
