package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// MaxRequestBytes bounds how much of a request is ever read.
const MaxRequestBytes = 1024

// ReadRequestLine reads at most limit bytes from r with a single read and
// returns the first line, without its terminator.
func ReadRequestLine(r io.Reader, limit int) (string, error) {
	if limit <= 0 {
		limit = MaxRequestBytes
	}
	buf := make([]byte, limit)
	n, err := r.Read(buf)
	if n == 0 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return "", fmt.Errorf("read request: %w", err)
	}
	data := buf[:n]
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	}
	return strings.TrimRight(string(data), "\r"), nil
}

// IsTimeout reports whether err is a deadline expiry on a connection or listener.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsHomepageRequest matches the exact "GET / " request shape.
func IsHomepageRequest(requestLine string) bool {
	return strings.HasPrefix(requestLine, "GET / ")
}

// WriteJSON writes a complete HTTP/1.1 reply with a {"message": ...} body.
func WriteJSON(w io.Writer, status int, message string, cors bool) error {
	body, err := json.Marshal(StatusBody{Message: message})
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	var hdr strings.Builder
	fmt.Fprintf(&hdr, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	if cors {
		hdr.WriteString("Access-Control-Allow-Origin: *\r\n")
	}
	hdr.WriteString("Content-Type: application/json\r\n")
	hdr.WriteString("Connection: close\r\n\r\n")
	return writeAll(w, hdr.String(), body)
}

// WriteHTML writes a 200 reply carrying an HTML document.
func WriteHTML(w io.Writer, html []byte) error {
	hdr := "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nConnection: close\r\n\r\n"
	return writeAll(w, hdr, html)
}

func writeAll(w io.Writer, hdr string, body []byte) error {
	msg := make([]byte, 0, len(hdr)+len(body))
	msg = append(msg, hdr...)
	msg = append(msg, body...)
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}
