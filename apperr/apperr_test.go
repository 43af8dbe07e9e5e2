package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("dial tcp: connection refused")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "validation", err: Validation("rating must be between %d and %d", 1, 5), want: KindValidation},
		{name: "external", err: External(base, "failed to get balance"), want: KindExternalService},
		{name: "rejected", err: Rejected(base, "transaction reverted"), want: KindChainRejection},
		{name: "internal", err: Internal(base, "failed to generate key"), want: KindInternal},
		{name: "wrapped", err: fmt.Errorf("submit: %w", External(base, "rpc")), want: KindExternalService},
		{name: "plain error", err: base, want: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
			assert.True(t, Is(tt.err, tt.want))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	base := errors.New("connection refused")

	assert.Equal(t, "Address is required", Validation("Address is required").Error())
	assert.Equal(t, "failed to get balance: connection refused", External(base, "failed to get balance").Error())
	assert.ErrorIs(t, External(base, "failed to get balance"), base)
	assert.Equal(t, "connection refused", (&Error{Kind: KindInternal, Err: base}).Error())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "validation_error", KindValidation.String())
	assert.Equal(t, "external_service_error", KindExternalService.String())
	assert.Equal(t, "chain_rejection_error", KindChainRejection.String())
	assert.Equal(t, "internal_error", KindInternal.String())
	assert.False(t, Is(nil, KindInternal))
}

func TestPublic(t *testing.T) {
	rpcErr := errors.New(`Post "https://sepolia.infura.io/v3/secret-project": dial tcp: i/o timeout`)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "validation", err: InvalidInput(errors.New("odd length hex string"), "invalid public key"), want: "invalid public key: odd length hex string"},
		{name: "rejected", err: Rejected(errors.New("execution reverted: already rated"), "transaction reverted"), want: "transaction reverted: execution reverted: already rated"},
		{name: "external", err: External(rpcErr, "failed to get balance"), want: "failed to get balance"},
		{name: "wrapped external", err: fmt.Errorf("submit: %w", External(rpcErr, "failed to submit feedback")), want: "failed to submit feedback"},
		{name: "internal", err: Internal(rpcErr, "failed to build feedback payload"), want: "failed to build feedback payload"},
		{name: "internal without message", err: &Error{Kind: KindInternal, Err: rpcErr}, want: "internal server error"},
		{name: "plain error", err: rpcErr, want: "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Public(tt.err)
			assert.Equal(t, tt.want, got)
			if KindOf(tt.err) == KindExternalService || KindOf(tt.err) == KindInternal {
				assert.NotContains(t, got, "infura")
			}
		})
	}
}
