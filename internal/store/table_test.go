package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidTableName(t *testing.T) {
	assert.True(t, validTableName("workflow_status"))
	assert.True(t, validTableName("_private"))
	assert.True(t, validTableName("t2"))

	assert.False(t, validTableName(""))
	assert.False(t, validTableName("2fast"))
	assert.False(t, validTableName("bad-name"))
	assert.False(t, validTableName("drop table; --"))
	assert.False(t, validTableName("status\"table"))
}
