package upxl

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Options configures an Engine.
type Options struct {
	// BusID is the 3-bit bus identity of the device.
	BusID int `yaml:"bus_id"`
	// UseCRC expects a CRC32 trailer on every frame.
	UseCRC bool `yaml:"use_crc"`
	// Latch is the WS2812 quiet time after a transfer.
	Latch time.Duration `yaml:"latch"`
	// Brightness is the APA102 global brightness, 0-31.
	Brightness int `yaml:"apa102_brightness"`
	// APA102Tail is "zero" or "one".
	APA102Tail string `yaml:"apa102_tail"`
}

var defaultOptions = Options{
	UseCRC:     true,
	Latch:      DefaultLatch,
	Brightness: DefaultBrightness,
	APA102Tail: "zero",
}

func init() {
	if val := os.Getenv("UPXL_BUS_ID"); val != "" {
		if id, err := strconv.Atoi(val); err == nil {
			defaultOptions.BusID = id
		}
	}
	if val := os.Getenv("UPXL_USE_CRC"); val != "" {
		if use, err := strconv.ParseBool(val); err == nil {
			defaultOptions.UseCRC = use
		}
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.IntVar(&defaultOptions.BusID, "bus-id", defaultOptions.BusID, "Bus ID of the device (0-7).")
	flag.BoolVar(&defaultOptions.UseCRC, "crc", defaultOptions.UseCRC, "Expect CRC32 trailer on frames.")
	flag.DurationVar(&defaultOptions.Latch, "latch", defaultOptions.Latch, "WS2812 latch time after a draw.")
	flag.IntVar(&defaultOptions.Brightness, "apa102-brightness", defaultOptions.Brightness, "APA102 global brightness (0-31).")
	flag.StringVar(&defaultOptions.APA102Tail, "apa102-tail", defaultOptions.APA102Tail, "Fill of APA102 data after shrinking: zero or one.")
}

// DefaultOptions gets the default options.
func DefaultOptions() *Options {
	return &defaultOptions
}

// NewOptions creates Options with default values.
func NewOptions() *Options {
	opts := defaultOptions
	return &opts
}

// Validate checks the ranges of the options.
func (o *Options) Validate() error {
	if o.BusID < 0 || o.BusID > 7 {
		return fmt.Errorf("invalid bus id %d", o.BusID)
	}
	if o.Brightness < 0 || o.Brightness > 31 {
		return fmt.Errorf("invalid apa102 brightness %d", o.Brightness)
	}
	if o.Latch < 0 {
		return fmt.Errorf("invalid latch %v", o.Latch)
	}
	switch o.APA102Tail {
	case "", "zero", "one":
	default:
		return fmt.Errorf("invalid apa102 tail %q", o.APA102Tail)
	}
	return nil
}

func (o *Options) tailFill() TailFill {
	if o.APA102Tail == "one" {
		return TailOne
	}
	return TailZero
}
