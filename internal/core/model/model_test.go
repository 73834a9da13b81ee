package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.True(t, RoleSystem.Valid())
	assert.False(t, Role("tool").Valid())
	assert.False(t, Role("").Valid())
}

func TestMemoryCountsCoverage(t *testing.T) {
	assert.Equal(t, 0.0, MemoryCounts{}.Coverage())
	assert.InDelta(t, 0.75, MemoryCounts{Total: 4, Vectorized: 3, Pending: 1}.Coverage(), 1e-9)
}
