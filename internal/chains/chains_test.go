package chains

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromWebAppLink(t *testing.T) {
	id, err := FromWebAppLink("ethereum")
	require.NoError(t, err)
	assert.Equal(t, Mainnet, id)

	id, err = FromWebAppLink("Polygon")
	require.NoError(t, err)
	assert.Equal(t, 137, id)

	_, err = FromWebAppLink("invalid")
	assert.EqualError(t, err, `Network "invalid" can not be mapped`)
}

func TestEIP155(t *testing.T) {
	assert.Equal(t, "eip155:137", ToEIP155(137))

	id, ok := FromEIP155("eip155:10")
	assert.True(t, ok)
	assert.Equal(t, 10, id)

	_, ok = FromEIP155("cosmos:hub")
	assert.False(t, ok)
	_, ok = FromEIP155("eip155:abc")
	assert.False(t, ok)

	addr, ok := AccountFromEIP155("eip155:1:0xabc")
	assert.True(t, ok)
	assert.Equal(t, "0xabc", addr)
	_, ok = AccountFromEIP155("eip155:1")
	assert.False(t, ok)
}

func TestRegistry(t *testing.T) {
	assert.True(t, IsSupported(Mainnet))
	assert.False(t, IsSupported(999999))
	c, ok := Get(56)
	require.True(t, ok)
	assert.Equal(t, "bnb", c.Name)
	assert.Equal(t, "56-BNB", NativeCurrencyID(56))
	assert.Equal(t, "1-0xabc", CurrencyID(1, "0xabc"))
}
