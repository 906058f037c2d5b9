package app

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asesyuk/icm20948-ekf/internal/config"
	"github.com/asesyuk/icm20948-ekf/internal/ekf"
)

const wsWriteTimeout = 2 * time.Second

//go:embed web
var webFiles embed.FS

// viewerFiles is the embedded browser viewer rooted at index.html.
func viewerFiles() fs.FS {
	sub, err := fs.Sub(webFiles, "web")
	if err != nil {
		panic(err)
	}
	return sub
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// AttitudeServer keeps the last estimate received over MQTT and serves it
// as JSON and as a WebSocket stream.
type AttitudeServer struct {
	mu   sync.RWMutex
	last ekf.Estimate
	have bool
	subs map[chan ekf.Estimate]struct{}
}

func NewAttitudeServer() *AttitudeServer {
	return &AttitudeServer{subs: make(map[chan ekf.Estimate]struct{})}
}

// HandleMessage decodes one attitude payload and fans it out.
func (s *AttitudeServer) HandleMessage(payload []byte) error {
	var e ekf.Estimate
	if err := json.Unmarshal(payload, &e); err != nil {
		return fmt.Errorf("attitude unmarshal: %w", err)
	}

	s.mu.Lock()
	s.last = e
	s.have = true
	for ch := range s.subs {
		select {
		case ch <- e:
		default:
			// slow client, it will get the next one
		}
	}
	s.mu.Unlock()
	return nil
}

// Latest returns the last estimate, if any.
func (s *AttitudeServer) Latest() (ekf.Estimate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.have
}

func (s *AttitudeServer) subscribe() chan ekf.Estimate {
	ch := make(chan ekf.Estimate, 8)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *AttitudeServer) unsubscribe(ch chan ekf.Estimate) {
	s.mu.Lock()
	delete(s.subs, ch)
	s.mu.Unlock()
}

// Handler routes the API, the WebSocket and static files from static
// (nil to skip them).
func (s *AttitudeServer) Handler(static fs.FS) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/attitude", s.handleAttitude)
	mux.HandleFunc("/ws/attitude", s.handleWS)
	if static != nil {
		mux.Handle("/", http.FileServer(http.FS(static)))
	}
	return mux
}

func (s *AttitudeServer) handleAttitude(w http.ResponseWriter, r *http.Request) {
	e, ok := s.Latest()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(e); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func (s *AttitudeServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ch := s.subscribe()
	defer s.unsubscribe(ch)

	// Reads only to notice the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(e ekf.Estimate) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(e); err != nil {
			log.Printf("web: websocket write error: %v", err)
			return false
		}
		return true
	}

	if e, ok := s.Latest(); ok && !send(e) {
		return
	}
	for {
		select {
		case <-done:
			return
		case e := <-ch:
			if !send(e) {
				return
			}
		}
	}
}

// RunWeb subscribes to the attitude topic and serves the viewer.
func RunWeb() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	srv := NewAttitudeServer()
	if err := subscribe(client, cfg.TopicAttitude, srv.HandleMessage); err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, srv.Handler(viewerFiles()))
}
