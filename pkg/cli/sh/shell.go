// Package sh provides an interactive shell sending UPXL frames.
package sh

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/upxl/pkg/link"
	"github.com/robotalks/upxl/pkg/upxl"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	// URL is the sink connected on start.
	URL    string
	BusID  uint8
	UseCRC bool

	Shell *ishell.Shell
	Sink  io.WriteCloser
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly bool
	sinkURL  = "tcp://localhost:5120"
	busID    uint
	useCRC   = true

	// commands
	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
		&BusCmd,
		&SendCmd,
	}
)

func init() {
	if val := os.Getenv("UPXL_SINK"); val != "" {
		sinkURL = val
	}
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.StringVar(&sinkURL, "sink", sinkURL, "URL of the frame sink.")
	flag.UintVar(&busID, "bus-id", busID, "Bus ID of the target device (0-7).")
	flag.BoolVar(&useCRC, "crc", useCRC, "Append CRC32 to frames.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell from flags.
func New() *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		URL:         sinkURL,
		BusID:       uint8(busID & 7),
		UseCRC:      useCRC,
		Shell:       ishell.New(),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Sink == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// Connect opens the sink at url, replacing the current one.
func (s *Shell) Connect(url string) error {
	sink, err := link.OpenSink(url)
	if err != nil {
		return err
	}
	s.Disconnect()
	s.Sink, s.URL = sink, url
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", url))
	return nil
}

// Disconnect closes the current sink.
func (s *Shell) Disconnect() {
	if s.Sink != nil {
		s.Sink.Close()
		s.Sink = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Address returns the address of output on the current bus.
func (s *Shell) Address(output uint8) upxl.Address {
	return upxl.MakeAddress(s.BusID, output)
}

// Send writes frames, each with a single write.
func (s *Shell) Send(frames ...*upxl.Frame) error {
	if s.Sink == nil {
		return fmt.Errorf("not connected")
	}
	for _, f := range frames {
		f.CRC = s.UseCRC
		if _, err := f.WriteTo(s.Sink); err != nil {
			return err
		}
	}
	return nil
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.URL != "" {
		if err := s.Connect(s.URL); err != nil {
			log.Fatalf("connect %q failed: %v", s.URL, err)
		}
	}
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// ParseOutput parses an output number 0-7.
func ParseOutput(arg string) (uint8, error) {
	n, err := strconv.ParseUint(arg, 10, 8)
	if err != nil || n >= upxl.Channels {
		return 0, fmt.Errorf("invalid OUTPUT %q", arg)
	}
	return uint8(n), nil
}

// ParseHex parses bytes like "ff0000" or "ff:00:00".
func ParseHex(arg string) ([]byte, error) {
	return hex.DecodeString(strings.Replace(arg, ":", "", -1))
}

var (
	// ConnectCmd opens a frame sink.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "URL",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("URL required"))
				return
			}
			if err := ShellFrom(c).Connect(c.Args[0]); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd closes the frame sink.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// BusCmd shows or selects the target bus.
	BusCmd = ishell.Cmd{
		Name: "bus",
		Help: "[ID]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				id, err := strconv.ParseUint(c.Args[0], 10, 8)
				if err != nil || id > 7 {
					c.Err(fmt.Errorf("invalid bus ID %q", c.Args[0]))
					return
				}
				s.BusID = uint8(id)
			}
			c.Printf("bus %d crc %v\n", s.BusID, s.UseCRC)
		},
	}

	// SendCmd writes raw bytes to the sink.
	SendCmd = ishell.Cmd{
		Name: "send",
		Help: "HEX...",
		Func: MustBeConnected(func(c *ishell.Context) {
			for _, arg := range c.Args {
				data, err := ParseHex(arg)
				if err != nil {
					c.Err(err)
					return
				}
				if _, err := ShellFrom(c).Sink.Write(data); err != nil {
					c.Err(err)
					return
				}
			}
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New().Run(flag.Args()...)
}
