package chat

import "sync"

// ConnManager indexes locally-connected sessions by id, user and channel
// subscription. It only knows this gateway's sessions; cross-instance
// delivery goes through the broadcast bus.
type ConnManager struct {
	mu        sync.RWMutex
	gwID      string
	byID      map[string]*Client
	byUser    map[string]map[string]*Client
	byChannel map[int64]map[string]*Client
}

func NewConnManager(gwID string) *ConnManager {
	return &ConnManager{
		gwID:      gwID,
		byID:      make(map[string]*Client),
		byUser:    make(map[string]map[string]*Client),
		byChannel: make(map[int64]map[string]*Client),
	}
}

func (m *ConnManager) GatewayID() string { return m.gwID }

func (m *ConnManager) Add(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[c.ID] = c
	if _, ok := m.byUser[c.UserID]; !ok {
		m.byUser[c.UserID] = make(map[string]*Client)
	}
	m.byUser[c.UserID][c.ID] = c
}

// Remove detaches the session from every index and closes its send queue.
func (m *ConnManager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return
	}
	delete(m.byID, id)
	if set, ok := m.byUser[c.UserID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(m.byUser, c.UserID)
		}
	}
	for ch, set := range m.byChannel {
		delete(set, id)
		if len(set) == 0 {
			delete(m.byChannel, ch)
		}
	}
	// Close the session, not its send channel: a fanout worker holding an
	// older snapshot may still attempt a send.
	c.Close()
}

func (m *ConnManager) Subscribe(clientID string, channelID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[clientID]
	if !ok {
		return
	}
	if _, ok := m.byChannel[channelID]; !ok {
		m.byChannel[channelID] = make(map[string]*Client)
	}
	m.byChannel[channelID][clientID] = c
}

func (m *ConnManager) ClientsForChannel(channelID int64) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.byChannel[channelID]
	out := make([]*Client, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

func (m *ConnManager) ClientsForUser(userID string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.byUser[userID]
	out := make([]*Client, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}
