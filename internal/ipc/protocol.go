// Package ipc implements the Unix-domain control socket: a varint-framed
// wire protocol, the server that dispatches control verbs, and the
// client the CLI subcommands use to drive a running instance.
//
// A message is an ordered list of strings. Each string is framed as a
// varint byte length (7-bit payload per byte, MSB set on continuation,
// least-significant group first) followed by UTF-8 bytes; the message
// itself is prefixed by a varint string count. A response is a varint
// success flag (1 or 0) followed by one framed string.
package ipc

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// maxStringLen caps a single framed string so a malformed or hostile
// client cannot make the server allocate without bound.
const maxStringLen = 1 << 20

// SocketPath returns the control socket path: $XDG_RUNTIME_DIR when
// set, otherwise the system temp directory.
func SocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "midi-macros-ipc.sock")
}

// WriteVarint writes u in LEB-128 form.
func WriteVarint(w io.Writer, u uint64) error {
	var buf [10]byte
	n := 0
	for {
		b := byte(u & 0x7F)
		u >>= 7
		if u != 0 {
			b |= 0x80
		}
		buf[n] = b
		n++
		if u == 0 {
			break
		}
	}
	_, err := w.Write(buf[:n])
	return err
}

// ReadVarint reads a LEB-128 varint.
func ReadVarint(r io.Reader) (uint64, error) {
	var u uint64
	var shift uint
	var one [1]byte
	for {
		if _, err := io.ReadFull(r, one[:]); err != nil {
			return 0, err
		}
		b := one[0]
		if shift >= 64 {
			return 0, fmt.Errorf("ipc: varint overflows 64 bits")
		}
		u |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return u, nil
		}
		shift += 7
	}
}

// WriteString frames one string: varint byte length, then the bytes.
func WriteString(w io.Writer, s string) error {
	if err := WriteVarint(w, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// ReadString reads one framed string.
func ReadString(r io.Reader) (string, error) {
	n, err := ReadVarint(r)
	if err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", fmt.Errorf("ipc: framed string of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteMessage frames a whole message: varint string count, then each
// framed string.
func WriteMessage(w io.Writer, message []string) error {
	if err := WriteVarint(w, uint64(len(message))); err != nil {
		return err
	}
	for _, s := range message {
		if err := WriteString(w, s); err != nil {
			return err
		}
	}
	return nil
}

// ReadMessage reads a framed message.
func ReadMessage(r io.Reader) ([]string, error) {
	n, err := ReadVarint(r)
	if err != nil {
		return nil, err
	}
	if n > maxStringLen {
		return nil, fmt.Errorf("ipc: message of %d strings exceeds limit", n)
	}
	message := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		s, err := ReadString(r)
		if err != nil {
			return nil, err
		}
		message = append(message, s)
	}
	return message, nil
}

// WriteResponse frames a response: varint success flag, then one
// framed string.
func WriteResponse(w io.Writer, success bool, body string) error {
	flag := uint64(0)
	if success {
		flag = 1
	}
	if err := WriteVarint(w, flag); err != nil {
		return err
	}
	return WriteString(w, body)
}

// ReadResponse reads a framed response.
func ReadResponse(r io.Reader) (success bool, body string, err error) {
	flag, err := ReadVarint(r)
	if err != nil {
		return false, "", err
	}
	body, err = ReadString(r)
	if err != nil {
		return false, "", err
	}
	return flag != 0, body, nil
}
