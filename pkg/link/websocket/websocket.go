// Package websocket carries the link byte stream over WebSocket binary
// messages.
package websocket

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/upxl/pkg/framework"
)

// DefaultOrigin is sent by Dial.
const DefaultOrigin = "http://localhost/"

// Server accepts WebSocket clients and writes the payload of every
// message they send into the link.
type Server struct {
	Address string
	Path    string
}

// NewServer creates a Server.
func NewServer(address, path string) *Server {
	if path == "" {
		path = "/"
	}
	return &Server{Address: address, Path: path}
}

// Handler returns the http.Handler writing messages into w. Messages of
// concurrent clients are not interleaved.
func (s *Server) Handler(w io.Writer) http.Handler {
	var lock sync.Mutex
	return websocket.Server{Handler: func(conn *websocket.Conn) {
		defer conn.Close()
		remote := conn.Request().RemoteAddr
		glog.Infof("ws %s connected", remote)
		for {
			var msg []byte
			if err := websocket.Message.Receive(conn, &msg); err != nil {
				if err != io.EOF {
					glog.Warningf("ws %s: %v", remote, err)
				}
				break
			}
			lock.Lock()
			_, err := w.Write(msg)
			lock.Unlock()
			if err != nil {
				glog.Warningf("ws %s: %v", remote, err)
				break
			}
		}
		glog.Infof("ws %s disconnected", remote)
	}}
}

// Run serves until ctx is canceled.
func (s *Server) Run(ctx context.Context, w io.Writer) error {
	mux := http.NewServeMux()
	mux.Handle(s.Path, s.Handler(w))
	srv := &http.Server{Addr: s.Address, Handler: mux}
	glog.Infof("ws listening on %s%s", s.Address, s.Path)
	err := framework.RunWithContextCancel(ctx, func() { srv.Close() }, srv.ListenAndServe)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Sink sends every write as one binary message.
type Sink websocket.Conn

// Dial connects to a Server.
func Dial(url string) (*Sink, error) {
	conn, err := websocket.Dial(url, "", DefaultOrigin)
	if err != nil {
		return nil, err
	}
	return (*Sink)(conn), nil
}

// Write implements io.Writer.
func (s *Sink) Write(p []byte) (int, error) {
	if err := websocket.Message.Send((*websocket.Conn)(s), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close implements io.Closer.
func (s *Sink) Close() error {
	return (*websocket.Conn)(s).Close()
}
