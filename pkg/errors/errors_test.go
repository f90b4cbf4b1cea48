package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"paytx/domain/payment"
	"paytx/domain/shared"
)

func TestFromDomainError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{"not found", payment.NewOrderNotFoundError("SALARY:1"), CodeOrderNotFound},
		{"validation", shared.NewValidationError("command", "amount", "must be positive"), CodeValidation},
		{"transition", shared.NewStateTransitionError("payment_order", "SUCCESS", "FAILED"), CodeInvalidOrderState},
		{"conflict", shared.NewConcurrencyConflictError("payment_order", "P1", 2), CodeConcurrentModify},
		{"duplicate", shared.NewDuplicateError("payment_order", "SALARY:1"), CodeDuplicateOrder},
		{"incomplete", payment.NewIncompleteOrderError("P1"), CodeOrderIncomplete},
		{"wrapped", fmt.Errorf("pay/pay: %w", shared.NewValidationError("command", "x", "y")), CodeValidation},
		{"deadline", context.DeadlineExceeded, CodeTimeout},
		{"unknown", fmt.Errorf("boom"), CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FromDomainError(tc.err)
			assert.Equal(t, tc.code, got.Code)
			assert.ErrorIs(t, got, tc.err)
		})
	}
}

func TestFromDomainErrorKeepsAppError(t *testing.T) {
	orig := BadRequest("bad")
	assert.Same(t, orig, FromDomainError(fmt.Errorf("ctx: %w", orig)))
	assert.Nil(t, FromDomainError(nil))
	assert.True(t, Is(orig, CodeBadRequest))
}
