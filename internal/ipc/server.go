package ipc

import (
	"context"
	"net"
	"os"
	"sync"

	"github.com/midi-macros/midi-macros/internal/mmlog"
)

// Handler processes one control message and returns the response body
// plus whether the verb succeeded.
type Handler func(message []string) (success bool, body string)

// Server accepts control connections on a Unix-domain stream socket,
// reads one message per connection, and answers with one response. A
// connection that fails framing is closed with no response; the server
// keeps accepting.
type Server struct {
	path    string
	handler Handler

	ln     net.Listener
	wg     sync.WaitGroup
	closed chan struct{}
}

// NewServer binds path (removing any stale socket file left behind by
// an earlier run) and starts the accept loop in its own goroutine.
func NewServer(path string, handler Handler) (*Server, error) {
	if err := removeStaleSocket(path); err != nil {
		return nil, err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	s := &Server{path: path, handler: handler, ln: ln, closed: make(chan struct{})}
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// removeStaleSocket unlinks path if it is a leftover socket nothing is
// listening on. A live listener shows up as a dial that succeeds, in
// which case the bind is left to fail naturally.
func removeStaleSocket(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // nothing there
	}
	if info.Mode()&os.ModeSocket == 0 {
		return nil // not a socket; let the bind report the conflict
	}
	conn, err := net.Dial("unix", path)
	if err == nil {
		conn.Close()
		return nil // someone is listening
	}
	return os.Remove(path)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			mmlog.Errorf(context.Background(), "ipc accept failed: %v", err)
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	message, err := ReadMessage(conn)
	if err != nil {
		// Framing failure: close with no response.
		mmlog.Warnf(context.Background(), "ipc message framing failed: %v", err)
		return
	}
	success, body := s.handler(message)
	if err := WriteResponse(conn, success, body); err != nil {
		mmlog.Warnf(context.Background(), "ipc response write failed: %v", err)
	}
}

// Close stops accepting, waits for in-flight connections, and removes
// the socket file.
func (s *Server) Close() {
	close(s.closed)
	_ = s.ln.Close()
	s.wg.Wait()
	_ = os.Remove(s.path)
}
