package replica

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Snapshot is the read-only engine state served to diagnostics
// clients. The engine publishes a fresh one at the end of every tick.
type Snapshot struct {
	Role       string  `json:"role"`
	ClientID   byte    `json:"clientId"`
	Time       float64 `json:"time"`
	Conns      int     `json:"conns"`
	Entities   int     `json:"entities"`
	NextReckon float64 `json:"nextReckon"`
}

// diagState decouples the single-threaded engine tick from the
// diagnostics goroutines: the tick only swaps in a value, readers only
// copy it out.
type diagState struct {
	mu   sync.RWMutex
	last Snapshot
}

func (d *diagState) publish(s Snapshot) {
	d.mu.Lock()
	d.last = s
	d.mu.Unlock()
}

func (d *diagState) snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.last
}

var diagUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveDiag serves the websocket diagnostics stream: one JSON snapshot
// per second per subscriber, read-only.
func serveDiag(addr string, d *diagState) {
	mux := http.NewServeMux()
	mux.HandleFunc("/diag", func(w http.ResponseWriter, r *http.Request) {
		conn, err := diagUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Print(err)
			return
		}
		defer conn.Close()

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for range ticker.C {
			if err := conn.WriteJSON(d.snapshot()); err != nil {
				return
			}
		}
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Print(err)
	}
}
