package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventNameSplitJoin(t *testing.T) {
	base, group := EventName("memory:read/ram0").Split()
	assert.Equal(t, EventName("memory:read"), base)
	assert.Equal(t, "ram0", group)

	base, group = EventName("memory:read").Split()
	assert.Equal(t, EventName("memory:read"), base)
	assert.Equal(t, "", group)

	assert.Equal(t, EventName("memory:read/ram0"), EventName("memory:read").WithGroup("ram0"))
	assert.Equal(t, EventName("memory:read"), EventName("memory:read/ram0").WithGroup(""))
	assert.True(t, EventName("memory:read/ram0").HasGroup())
	assert.False(t, EventName("memory:read").HasGroup())
}
