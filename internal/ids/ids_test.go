package ids_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/foldb/folddb/internal/ids"
)

func TestNewIDsAreValidAndUnique(t *testing.T) {
	a := ids.NewAtomUUID()
	r := ids.NewRefUUID()
	c := ids.NewCorrelationID()

	assert.True(t, ids.Valid(a))
	assert.True(t, ids.Valid(r))
	assert.True(t, ids.Valid(c))
	assert.NotEqual(t, a, r)
	assert.NotEqual(t, r, c)
}

func TestValidRejectsGarbage(t *testing.T) {
	assert.False(t, ids.Valid("not-a-uuid"))
	assert.False(t, ids.Valid(""))
}
