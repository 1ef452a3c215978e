package ws

import (
	"sync"
	"time"

	"log/slog"

	"github.com/loveyoulani/chat/pkg/metrics"
)

// sendTimeout bounds how long a broadcast waits on one connection's
// buffer before treating it as stalled.
const sendTimeout = 3 * time.Second

// Registry tracks which connections are listening to which room. It is
// process-local and rebuilt from nothing on restart; the persisted room
// lives in the store independently.
type Registry struct {
	log *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*room
}

type room struct {
	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{log: log, rooms: map[string]*room{}}
}

// Join adds a connection to a room, creating the entry if needed, and
// broadcasts the updated presence count.
func (g *Registry) Join(code string, c *Conn) {
	g.mu.Lock()
	rm := g.rooms[code]
	if rm == nil {
		rm = &room{conns: map[*Conn]struct{}{}}
		g.rooms[code] = rm
	}
	rm.mu.Lock()
	rm.conns[c] = struct{}{}
	n := len(rm.conns)
	rm.mu.Unlock()
	g.mu.Unlock()

	metrics.ActiveConnections.Inc()
	g.Broadcast(code, UserCount(n))
}

// Leave removes a connection if present. Removing an absent connection is
// a no-op because disconnect paths race with broadcast pruning. The last
// connection out deletes the room entry; otherwise the remaining
// listeners get a presence update.
func (g *Registry) Leave(code string, c *Conn) {
	removed, left := g.remove(code, c)
	if !removed {
		return
	}
	metrics.ActiveConnections.Dec()
	if left > 0 {
		g.Broadcast(code, UserCount(left))
	}
}

// Count returns current presence, 0 for unknown rooms.
func (g *Registry) Count(code string) int {
	g.mu.RLock()
	rm := g.rooms[code]
	g.mu.RUnlock()
	if rm == nil {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.conns)
}

// Broadcast delivers a frame to every connection in a room. Sends run
// concurrently so one stalled client cannot hold up the rest. Failed
// connections are pruned in a single pass afterwards, followed by one
// corrective presence broadcast.
func (g *Registry) Broadcast(code string, payload []byte) {
	g.mu.RLock()
	rm := g.rooms[code]
	g.mu.RUnlock()
	if rm == nil {
		return
	}

	rm.mu.Lock()
	conns := make([]*Conn, 0, len(rm.conns))
	for c := range rm.conns {
		conns = append(conns, c)
	}
	rm.mu.Unlock()

	var wg sync.WaitGroup
	var fmu sync.Mutex
	var failed []*Conn
	for _, c := range conns {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			if err := c.Send(payload, sendTimeout); err != nil {
				fmu.Lock()
				failed = append(failed, c)
				fmu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	if len(failed) == 0 {
		return
	}
	pruned := false
	for _, c := range failed {
		_ = c.Close()
		if removed, _ := g.remove(code, c); removed {
			pruned = true
			metrics.ActiveConnections.Dec()
			metrics.BroadcastPrunes.Inc()
		}
	}
	g.log.Debug("ws.broadcast.pruned", "room", code, "dropped", len(failed))
	if pruned {
		if n := g.Count(code); n > 0 {
			g.Broadcast(code, UserCount(n))
		}
	}
}

// CloseRoom notifies a room's listeners with a final frame, then drops
// and closes every connection. Used when a room is deleted or swept.
func (g *Registry) CloseRoom(code string, payload []byte) {
	if payload != nil {
		g.Broadcast(code, payload)
	}

	g.mu.Lock()
	rm := g.rooms[code]
	if rm == nil {
		g.mu.Unlock()
		return
	}
	delete(g.rooms, code)
	g.mu.Unlock()

	rm.mu.Lock()
	conns := make([]*Conn, 0, len(rm.conns))
	for c := range rm.conns {
		conns = append(conns, c)
	}
	rm.conns = map[*Conn]struct{}{}
	rm.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
		metrics.ActiveConnections.Dec()
	}
	g.log.Info("ws.room.closed", "room", code, "dropped", len(conns))
}

// remove deletes a connection without broadcasting. Holds the registry
// lock through the room mutation so empty entries are reaped atomically.
func (g *Registry) remove(code string, c *Conn) (removed bool, left int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rm := g.rooms[code]
	if rm == nil {
		return false, 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, ok := rm.conns[c]; !ok {
		return false, len(rm.conns)
	}
	delete(rm.conns, c)
	left = len(rm.conns)
	if left == 0 {
		delete(g.rooms, code)
	}
	return true, left
}
