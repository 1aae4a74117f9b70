package id

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cardvault/internal/core/apperror"
)

func TestNew_IsTimeOrdered(t *testing.T) {
	a := New()
	b := New()
	assert.Equal(t, 7, int(a.Version()))
	assert.Less(t, a.String(), b.String())
}

func TestParseParam(t *testing.T) {
	v := New()
	got, err := ParseParam("card_id", v.String())
	assert.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = ParseParam("card_id", "42")
	appErr, ok := apperror.AsAppError(err)
	assert.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
	assert.Equal(t, "card_id", appErr.Details["field"])
}
