package link

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/robotalks/upxl/pkg/framework"
	"github.com/robotalks/upxl/pkg/link/mqtt"
	"github.com/robotalks/upxl/pkg/link/websocket"
)

// OpenSource creates a link input from a URL:
//
//	-, stdin                  standard input
//	path, file://path         serial device or FIFO reopened on EOF, or a file read once
//	tcp://host:port           listen and accept one client at a time
//	replay://path             timed replay of a capture, ?speed=N&loop=true
//	ws://host:port/path       WebSocket server, binary messages are the stream
//	mqtt://host:port/prefix/  messages published to prefix + "frames"
func OpenSource(rawURL string) (Source, error) {
	if rawURL == "-" || rawURL == "stdin" {
		return NewPump("stdin", OpenFunc(func(context.Context) (io.ReadCloser, error) {
			return ioutil.NopCloser(os.Stdin), nil
		}), false), nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &URLError{URL: rawURL, Err: err}
	}
	switch u.Scheme {
	case "", "file":
		path := u.Path
		if u.Scheme == "" {
			path = rawURL
		}
		return NewPump(path, OpenFunc(func(context.Context) (io.ReadCloser, error) {
			return os.Open(path)
		}), !isRegularFile(path)), nil
	case "tcp":
		return NewPump(rawURL, &tcpListener{address: u.Host}, true), nil
	case "replay":
		return newReplayFromURL(u)
	case "ws":
		return websocket.NewServer(u.Host, u.Path), nil
	case "mqtt":
		src, err := mqtt.NewSource(rawURL)
		if err != nil {
			return nil, &URLError{URL: rawURL, Err: err}
		}
		return src, nil
	}
	return nil, &URLError{URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
}

// OpenSink creates a frame sink from a URL:
//
//	-, stdout                 standard output
//	path, file://path         serial device, FIFO or file
//	tcp://host:port           connect
//	ws://host:port/path       WebSocket client, one binary message per write
//	mqtt://host:port/prefix/  publish to prefix + "frames"
//	record://path             capture file
func OpenSink(rawURL string) (io.WriteCloser, error) {
	if rawURL == "-" || rawURL == "stdout" {
		return nopWriteCloser{os.Stdout}, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &URLError{URL: rawURL, Err: err}
	}
	var w io.WriteCloser
	switch u.Scheme {
	case "", "file":
		path := u.Path
		if u.Scheme == "" {
			path = rawURL
		}
		w, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	case "tcp":
		w, err = net.Dial("tcp", u.Host)
	case "ws":
		w, err = websocket.Dial(rawURL)
	case "mqtt":
		w, err = mqtt.NewSink(rawURL)
	case "record":
		w, err = CreateRecorder(u.Host + u.Path)
	default:
		err = fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, &URLError{URL: rawURL, Err: err}
	}
	return w, nil
}

// isRegularFile tells if path is a plain file. Devices which don't exist
// yet are treated as reopenable.
func isRegularFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// tcpListener accepts one connection per Open.
type tcpListener struct {
	address string

	lock     sync.Mutex
	listener net.Listener
}

func (l *tcpListener) Open(ctx context.Context) (io.ReadCloser, error) {
	l.lock.Lock()
	if l.listener == nil {
		ln, err := net.Listen("tcp", l.address)
		if err != nil {
			l.lock.Unlock()
			return nil, err
		}
		l.listener = ln
	}
	ln := l.listener
	l.lock.Unlock()

	var conn net.Conn
	err := framework.RunWithContextCancel(ctx, func() {
		l.lock.Lock()
		ln.Close()
		l.listener = nil
		l.lock.Unlock()
	}, func() (err error) {
		conn, err = ln.Accept()
		return
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func parseSpeed(q url.Values) (float64, error) {
	val := q.Get("speed")
	if val == "" {
		return 1, nil
	}
	speed, err := strconv.ParseFloat(val, 64)
	if err != nil || speed <= 0 {
		return 0, fmt.Errorf("invalid speed %q", val)
	}
	return speed, nil
}

func newReplayFromURL(u *url.URL) (Source, error) {
	speed, err := parseSpeed(u.Query())
	if err != nil {
		return nil, &URLError{URL: u.String(), Err: err}
	}
	return &Replay{
		Path:  u.Host + u.Path,
		Speed: speed,
		Loop:  strings.EqualFold(u.Query().Get("loop"), "true"),
	}, nil
}
