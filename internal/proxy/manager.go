package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
)

// Manager rotates outgoing requests across a fixed list of proxies.
type Manager struct {
	proxies    []*url.URL
	mu         sync.Mutex
	proxyIndex int
}

// NewManager parses the proxy list. An empty list means requests go direct,
// honouring the usual HTTP(S)_PROXY environment variables.
func NewManager(proxies []string) (*Manager, error) {
	m := &Manager{}
	for _, raw := range proxies {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy %q", raw)
		}
		m.proxies = append(m.proxies, u)
	}
	return m, nil
}

// Len returns the number of configured proxies.
func (m *Manager) Len() int {
	return len(m.proxies)
}

// Next returns a proxy URL from the list, rotating sequentially.
func (m *Manager) Next() *url.URL {
	if len(m.proxies) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.proxies[m.proxyIndex]
	m.proxyIndex = (m.proxyIndex + 1) % len(m.proxies)
	return p
}

// Proxy has the signature of http.Transport.Proxy.
func (m *Manager) Proxy(req *http.Request) (*url.URL, error) {
	if len(m.proxies) == 0 {
		return http.ProxyFromEnvironment(req)
	}
	return m.Next(), nil
}
