// Package mirror provides an output pipeline which sends one output
// channel of every transfer to a pixel writer, e.g. a WS2812 strip on a
// host SPI port.
package mirror

import (
	"fmt"
	"io"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"

	"github.com/robotalks/upxl/pkg/bitplane"
	"github.com/robotalks/upxl/pkg/upxl"
)

// PixelWriter writes raw pixel bytes.
type PixelWriter interface {
	Write(pixels []byte) (int, error)
}

// Pipeline mirrors Output to Writer. Only WS2812 outputs are mirrored,
// transfers without one complete immediately.
type Pipeline struct {
	Output uint8
	Writer PixelWriter
	// MaxBytes truncates the data written, 0 for no limit.
	MaxBytes int
}

// Arm implements upxl.Pipeline.
func (p *Pipeline) Arm(xfer *upxl.Transfer, done func()) error {
	if p.Output >= upxl.Channels {
		return fmt.Errorf("invalid mirror output %d", p.Output)
	}
	if xfer.StartBits&(1<<p.Output) == 0 {
		go done()
		return nil
	}
	data := bitplane.Demux(xfer.Lanes, p.Output)
	if p.MaxBytes > 0 && len(data) > p.MaxBytes {
		data = data[:p.MaxBytes]
	}
	go func() {
		if _, err := p.Writer.Write(data); err != nil {
			glog.Warningf("mirror output %d: %v", p.Output, err)
		}
		done()
	}()
	return nil
}

// SPIWriter drives a WS2812 strip through nrzled on a SPI port.
type SPIWriter struct {
	dev  *nrzled.Dev
	port spi.PortCloser
	size int
}

// OpenSPI opens the SPI port ("" for the first one) for a strip of
// pixels LEDs with channels (3 or 4) bytes per LED.
func OpenSPI(port string, pixels, channels int) (*SPIWriter, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	p, err := spireg.Open(port)
	if err != nil {
		return nil, err
	}
	dev, err := nrzled.NewSPI(p, &nrzled.Opts{
		NumPixels: pixels,
		Channels:  channels,
		Freq:      800 * physic.KiloHertz,
	})
	if err != nil {
		p.Close()
		return nil, err
	}
	return &SPIWriter{dev: dev, port: p, size: pixels * channels}, nil
}

// Size is the number of bytes of the strip.
func (w *SPIWriter) Size() int {
	return w.size
}

// Write implements PixelWriter.
func (w *SPIWriter) Write(pixels []byte) (int, error) {
	if len(pixels) < w.size {
		padded := make([]byte, w.size)
		copy(padded, pixels)
		pixels = padded
	}
	return w.dev.Write(pixels[:w.size])
}

// Close turns the strip off and releases the port.
func (w *SPIWriter) Close() error {
	w.dev.Halt()
	return w.port.Close()
}

var _ io.Closer = &SPIWriter{}
