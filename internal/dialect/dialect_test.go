package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	assert.Equal(t, MySQL, Get("MYSQL"))
	assert.Equal(t, SQLServer, Get("sqlserver"))
	assert.Equal(t, PostgreSQL, Get("unknown"))
	assert.Equal(t, PostgreSQL, Get(""))
	assert.Equal(t, "[orders]", SQLServer.Quote("orders"))

	_, ok := Lookup("unknown")
	assert.False(t, ok)
}
