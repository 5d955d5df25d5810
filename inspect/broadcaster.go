package inspect

import (
	"net/http"
	"slices"
	"sync"
)

type event struct {
	name string
	data string
}

type broadcaster struct {
	m       sync.Mutex
	clients []chan<- event
}

func newBroadcaster() *broadcaster {
	return &broadcaster{
		clients: make([]chan<- event, 0),
	}
}

func (b *broadcaster) addClient(ch chan<- event) {
	b.m.Lock()
	b.clients = append(b.clients, ch)
	b.m.Unlock()
}

func (b *broadcaster) removeClient(ch chan<- event) {
	b.m.Lock()
	defer b.m.Unlock()

	idx := slices.Index(b.clients, ch)
	if idx == -1 {
		return
	}
	b.clients = slices.Delete(b.clients, idx, idx+1)
}

func (b *broadcaster) count() int {
	b.m.Lock()
	defer b.m.Unlock()
	return len(b.clients)
}

// broadcast never blocks; slow clients miss events.
func (b *broadcaster) broadcast(ev event) {
	b.m.Lock()
	for _, ch := range b.clients {
		select {
		case ch <- ev:
		default:
		}
	}
	b.m.Unlock()
}

func (b *broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	msgCh := make(chan event, 16)
	b.addClient(msgCh)
	defer b.removeClient(msgCh)

	notify := r.Context().Done()

	w.Write([]byte(":ok\n\n"))
	flusher.Flush()

	for {
		select {
		case <-notify:
			return
		case ev := <-msgCh:
			w.Write([]byte("event: " + ev.name + "\n"))
			w.Write([]byte("data: " + ev.data + "\n\n"))
			flusher.Flush()
		}
	}
}

var _ http.Handler = (*broadcaster)(nil)
