package inputrelay

import (
	"fmt"
	"sync"
)

// Only one Server and one Client may run per process, per spec.md
// section 3/9: Start fails if one is already registered, Stop is
// idempotent with respect to the slot.
var (
	serverMu     sync.Mutex
	activeServer *Server

	clientMu     sync.Mutex
	activeClient *Client
)

func registerServer(s *Server) error {
	serverMu.Lock()
	defer serverMu.Unlock()
	if activeServer != nil {
		return fmt.Errorf("inputrelay: a server is already running in this process")
	}
	activeServer = s
	return nil
}

func unregisterServer(s *Server) {
	serverMu.Lock()
	defer serverMu.Unlock()
	if activeServer == s {
		activeServer = nil
	}
}

func registerClient(c *Client) error {
	clientMu.Lock()
	defer clientMu.Unlock()
	if activeClient != nil {
		return fmt.Errorf("inputrelay: a client is already running in this process")
	}
	activeClient = c
	return nil
}

func unregisterClient(c *Client) {
	clientMu.Lock()
	defer clientMu.Unlock()
	if activeClient == c {
		activeClient = nil
	}
}
