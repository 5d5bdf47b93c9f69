package envlink

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/atelier-rl/paintpool/core"
	"github.com/gorilla/websocket"
)

// Server hosts environments over websocket connections. Each connection at
// /env/{id} gets its own environment instance and a sequential
// request/response loop; errors tear down that connection only.
type Server struct {
	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader
	newEnv   func(id int) core.Environment
}

func NewServer(addr string, newEnv func(id int) core.Environment) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	s := &Server{
		listener: listener,
		newEnv:   newEnv,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/env/", s.handle)
	s.server = &http.Server{Handler: mux}
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start serves connections in the background.
func (s *Server) Start() {
	go func() {
		if err := s.server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			log.Printf("environment server: %v", err)
		}
	}()
}

func (s *Server) Close() error {
	return s.server.Close()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/env/")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "bad environment id", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	env := s.newEnv(id)
	defer env.Close()

	for {
		var req request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		var out core.EnvOutput
		switch req.Type {
		case typeReset:
			out, err = env.Reset()
		case typeStep:
			out, err = env.Step(req.Action)
		default:
			err = fmt.Errorf("unknown request type %q", req.Type)
		}
		if err != nil {
			log.Printf("environment %d: %v", id, err)
			return
		}
		if err := conn.WriteJSON(out); err != nil {
			return
		}
	}
}
