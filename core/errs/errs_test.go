package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvkernel/core/errs"
)

func TestObjectUnknownError(t *testing.T) {
	err := errs.NewObjectUnknownError("location", "L9")
	assert.Equal(t, `object unknown: location "L9"`, err.Error())
	assert.ErrorIs(t, err, errs.ErrObjectUnknown)

	wrapped := fmt.Errorf("create order: %w", err)
	var target *errs.ObjectUnknownError
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, "L9", target.Name)
}

func TestIllegalStateError(t *testing.T) {
	err := errs.NewIllegalStateError("kernel is in %s", "MODELLING")
	assert.Equal(t, "illegal state: kernel is in MODELLING", err.Error())
	assert.ErrorIs(t, err, errs.ErrIllegalState)
}

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errs.NewObjectUnknownError("vehicle", "v"), "object_unknown"},
		{fmt.Errorf("x: %w", errs.NewObjectExistsError("order", "o")), "object_exists"},
		{errs.NewIllegalStateError("no"), "illegal_state"},
		{errs.NewIllegalArgumentError("length", "must be positive"), "illegal_argument"},
		{&errs.UnauthorizedError{Principal: "guest"}, "unauthorized"},
		{errors.New("boom"), "internal"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, errs.Kind(c.err))
	}
}
