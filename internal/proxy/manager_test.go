package proxy

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerRotates(t *testing.T) {
	m, err := NewManager([]string{"http://p1:8000", "http://p2:8000"})
	require.NoError(t, err)
	require.Equal(t, 2, m.Len())

	req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
	var hosts []string
	for i := 0; i < 3; i++ {
		u, err := m.Proxy(req)
		require.NoError(t, err)
		hosts = append(hosts, u.Host)
	}
	assert.Equal(t, []string{"p1:8000", "p2:8000", "p1:8000"}, hosts)
}

func TestManagerWithoutProxies(t *testing.T) {
	m, err := NewManager(nil)
	require.NoError(t, err)
	assert.Nil(t, m.Next())
}

func TestNewManagerRejectsGarbage(t *testing.T) {
	_, err := NewManager([]string{"not a proxy"})
	assert.Error(t, err)
}
