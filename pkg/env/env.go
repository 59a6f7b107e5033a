// Package env assembles a running device from configuration.
package env

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/golang/glog"
	"gopkg.in/yaml.v3"

	fx "github.com/robotalks/upxl/pkg/framework"
	"github.com/robotalks/upxl/pkg/link"
	"github.com/robotalks/upxl/pkg/output/mirror"
	"github.com/robotalks/upxl/pkg/output/sim"
	"github.com/robotalks/upxl/pkg/telemetry"
	"github.com/robotalks/upxl/pkg/upxl"
)

// Output kinds.
const (
	OutputSim    = "sim"
	OutputMirror = "mirror"
)

// MirrorConfig configures the mirror output.
type MirrorConfig struct {
	// SPIPort is the periph.io SPI port name, "" for the first one.
	SPIPort string `yaml:"spi_port"`
	// Output is the channel mirrored to the strip.
	Output int `yaml:"output"`
	Pixels int `yaml:"pixels"`
	// Elements is 3 or 4 bytes per pixel.
	Elements int `yaml:"elements"`
}

// Config provides the options of a device.
type Config struct {
	Engine upxl.Options `yaml:"engine"`

	// Source is the URL of the link input, see link.OpenSource.
	Source   string `yaml:"source"`
	RingSize int    `yaml:"ring_size"`
	// Capture records the input stream into a file if not empty.
	Capture string `yaml:"capture"`

	// Output is "sim" or "mirror".
	Output string       `yaml:"output"`
	Mirror MirrorConfig `yaml:"mirror"`

	// MQTTBrokerURL enables telemetry, e.g. mqtt://host:port/topic-prefix/
	MQTTBrokerURL     string        `yaml:"mqtt"`
	DeviceID          string        `yaml:"device_id"`
	TelemetryInterval time.Duration `yaml:"telemetry_interval"`
}

var (
	defaultConfig = Config{
		Source:            "tcp://:5120",
		RingSize:          link.DefaultRingSize,
		Output:            OutputSim,
		Mirror:            MirrorConfig{Pixels: 60, Elements: 3},
		TelemetryInterval: telemetry.DefaultInterval,
	}

	configFile string
)

func init() {
	if val := os.Getenv("UPXL_SOURCE"); val != "" {
		defaultConfig.Source = val
	}
	if val := os.Getenv("UPXL_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	upxl.SetupFlags()
	flag.StringVar(&configFile, "config", configFile, "YAML config file, values override flags.")
	flag.StringVar(&defaultConfig.Source, "source", defaultConfig.Source, "Link input URL.")
	flag.IntVar(&defaultConfig.RingSize, "ring-size", defaultConfig.RingSize, "Size of the receive buffer.")
	flag.StringVar(&defaultConfig.Capture, "capture", defaultConfig.Capture, "Record the input stream into a file.")
	flag.StringVar(&defaultConfig.Output, "output", defaultConfig.Output, "Output pipeline: sim or mirror.")
	flag.StringVar(&defaultConfig.Mirror.SPIPort, "mirror-spi", defaultConfig.Mirror.SPIPort, "SPI port of the mirror output.")
	flag.IntVar(&defaultConfig.Mirror.Output, "mirror-output", defaultConfig.Mirror.Output, "Channel mirrored to SPI.")
	flag.IntVar(&defaultConfig.Mirror.Pixels, "mirror-pixels", defaultConfig.Mirror.Pixels, "Number of LEDs on the mirror strip.")
	flag.IntVar(&defaultConfig.Mirror.Elements, "mirror-elements", defaultConfig.Mirror.Elements, "Bytes per LED of the mirror strip.")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL for telemetry.")
	flag.StringVar(&defaultConfig.DeviceID, "id", defaultConfig.DeviceID, "Device ID, default is derived from machine ID.")
	flag.DurationVar(&defaultConfig.TelemetryInterval, "telemetry-interval", defaultConfig.TelemetryInterval, "Telemetry publishing interval.")
}

// NewConfig creates a Config from defaults, flags and the config file.
func NewConfig() (*Config, error) {
	conf := defaultConfig
	conf.Engine = *upxl.NewOptions()
	if configFile != "" {
		if err := conf.Load(configFile); err != nil {
			return nil, err
		}
	}
	return &conf, nil
}

// MustNewConfig creates Config and fails on error.
func MustNewConfig() *Config {
	conf, err := NewConfig()
	if err != nil {
		log.Fatalln(err)
	}
	return conf
}

// Load overrides the config with values present in a YAML file.
func (c *Config) Load(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("config %s: %v", path, err)
	}
	return nil
}

// Env is a running device: link input, engine, output and telemetry.
type Env struct {
	Config    *Config
	Ring      *link.Ring
	Input     link.Source
	Recorder  *link.Recorder
	Engine    *upxl.Engine
	Publisher *telemetry.Publisher

	closers []io.Closer
}

// NewEnv creates Env from config.
func (c *Config) NewEnv() (*Env, error) {
	env := &Env{Config: c, Ring: link.NewRing(c.RingSize)}
	input, err := link.OpenSource(c.Source)
	if err != nil {
		return nil, err
	}
	env.Input = input

	pipeline, err := env.newPipeline()
	if err != nil {
		return nil, err
	}
	if env.Engine, err = upxl.NewEngine(env.Ring, pipeline, &c.Engine); err != nil {
		env.Close()
		return nil, err
	}

	if c.Capture != "" {
		if env.Recorder, err = link.CreateRecorder(c.Capture); err != nil {
			env.Close()
			return nil, err
		}
		env.closers = append(env.closers, env.Recorder)
	}

	if c.MQTTBrokerURL != "" {
		id := c.DeviceID
		if id == "" {
			id = telemetry.DeviceID()
		}
		meta := telemetry.Meta{
			DeviceID: id,
			BusID:    uint8(c.Engine.BusID),
			Source:   c.Source,
			Output:   c.Output,
			Started:  time.Now(),
		}
		if env.Publisher, err = telemetry.NewPublisher(c.MQTTBrokerURL, meta, env.Engine.Stats); err != nil {
			env.Close()
			return nil, fmt.Errorf("create telemetry publisher error: %v", err)
		}
		env.Publisher.Counter = env.Ring
		if c.TelemetryInterval > 0 {
			env.Publisher.Interval = c.TelemetryInterval
		}
	}
	return env, nil
}

func (e *Env) newPipeline() (upxl.Pipeline, error) {
	switch e.Config.Output {
	case "", OutputSim:
		return sim.New(), nil
	case OutputMirror:
		m := e.Config.Mirror
		if m.Output < 0 || m.Output >= upxl.Channels {
			return nil, fmt.Errorf("invalid mirror output %d", m.Output)
		}
		w, err := mirror.OpenSPI(m.SPIPort, m.Pixels, m.Elements)
		if err != nil {
			return nil, fmt.Errorf("open SPI %q error: %v", m.SPIPort, err)
		}
		e.closers = append(e.closers, w)
		return &mirror.Pipeline{Output: uint8(m.Output), Writer: w, MaxBytes: w.Size()}, nil
	}
	return nil, fmt.Errorf("unknown output %q", e.Config.Output)
}

// MustNewEnv creates Env and fails on error.
func (c *Config) MustNewEnv() *Env {
	env, err := c.NewEnv()
	if err != nil {
		log.Fatalln(err)
	}
	return env
}

// AddToLoop implements LoopAdder.
func (e *Env) AddToLoop(loop *fx.Loop) {
	loop.AddRunnable(
		fx.NamedRun("input", fx.RunFunc(e.runInput)),
		fx.NamedRun("engine", e.Engine),
	)
	if e.Publisher != nil {
		loop.Add(e.Publisher)
	}
}

// runInput pumps the link input into the ring. When the input ends the
// ring is closed, and the engine stops after the buffered frames.
func (e *Env) runInput(ctx context.Context) error {
	var w io.Writer = e.Ring
	if e.Recorder != nil {
		w = io.MultiWriter(e.Recorder, e.Ring)
	}
	glog.Infof("receiving from %s", e.Config.Source)
	err := e.Input.Run(ctx, w)
	e.Ring.Close()
	if err != nil && err != context.Canceled {
		glog.Errorf("input %s error: %v", e.Config.Source, err)
		return err
	}
	<-ctx.Done()
	return nil
}

// Close releases the output and the capture file.
func (e *Env) Close() error {
	var errs fx.AggregatedError
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs.Add(e.closers[i].Close())
	}
	e.closers = nil
	return errs.Aggregate()
}
