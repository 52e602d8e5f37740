package ipc

import (
	"fmt"
	"net"
)

// Send dials the control socket, writes one message, and returns the
// response. It is the whole client: one message, one response, per
// connection.
func Send(path string, message []string) (success bool, body string, err error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return false, "", fmt.Errorf("ipc: connecting to %s: %w", path, err)
	}
	defer conn.Close()
	if err := WriteMessage(conn, message); err != nil {
		return false, "", fmt.Errorf("ipc: sending message: %w", err)
	}
	success, body, err = ReadResponse(conn)
	if err != nil {
		return false, "", fmt.Errorf("ipc: reading response: %w", err)
	}
	return success, body, nil
}
