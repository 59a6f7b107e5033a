package telemetry

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"
	"github.com/jpillora/backoff"

	fx "github.com/robotalks/upxl/pkg/framework"
	"github.com/robotalks/upxl/pkg/link/mqtt"
	"github.com/robotalks/upxl/pkg/upxl"
)

// Topics relative to the device prefix.
const (
	StatsTopic = "stats"
	MetaTopic  = "meta"
)

// DefaultInterval is the default publishing interval.
const DefaultInterval = time.Second

// Broker publishes messages.
type Broker interface {
	PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token
}

// ByteCounter reports the number of bytes received by the link.
type ByteCounter interface {
	Received() uint64
}

// Meta describes a device, published retained and cleared on exit.
type Meta struct {
	DeviceID string    `json:"device-id"`
	BusID    uint8     `json:"bus-id"`
	Source   string    `json:"source,omitempty"`
	Output   string    `json:"output,omitempty"`
	Started  time.Time `json:"started"`
}

// Publisher publishes Stats every Interval. It is a Controller of a Loop.
type Publisher struct {
	Broker   Broker
	Meta     Meta
	Stats    *upxl.Stats
	Counter  ByteCounter
	Interval time.Duration
	// Backoff paces connection retries until the broker is reachable.
	Backoff *backoff.Backoff

	queue *mqtt.Queue
	last  time.Time
}

// DeviceID returns the machine id, or the host name if unavailable.
func DeviceID() string {
	id, err := machineid.ProtectedID("upxl")
	if err == nil {
		return id[:16]
	}
	glog.Warningf("machine id unavailable: %v", err)
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "upxl"
}

// NewPublisher creates a Publisher connected to an MQTT broker. The meta
// topic is cleared by the broker if the connection is lost.
func NewPublisher(brokerURL string, meta Meta, stats *upxl.Stats) (*Publisher, error) {
	opts, topicPrefix, err := mqtt.ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+meta.DeviceID+"/"+MetaTopic, nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("upxl:" + meta.DeviceID)
	}
	q := mqtt.NewQueue(opts, topicPrefix)
	p := &Publisher{
		Broker:   q,
		Meta:     meta,
		Stats:    stats,
		Interval: DefaultInterval,
		queue:    q,
	}
	q.OnConnect = func(*mqtt.Queue) { p.publishMeta() }
	return p, nil
}

func (p *Publisher) topic(name string) string {
	return p.Meta.DeviceID + "/" + name
}

// AddToLoop implements LoopAdder.
func (p *Publisher) AddToLoop(loop *fx.Loop) {
	loop.AddController(p)
	if p.queue != nil {
		loop.AddRunnable(fx.NamedRun("telemetry", fx.RunFunc(p.run)))
	}
}

func (p *Publisher) run(ctx context.Context) error {
	if err := connect(ctx, p.queue, p.backoff()); err != nil {
		return err
	}
	<-ctx.Done()
	p.Broker.PubWith(p.topic(MetaTopic), nil, 1, true).WaitTimeout(mqtt.DefaultTimeout)
	p.queue.Close()
	return nil
}

func (p *Publisher) backoff() *backoff.Backoff {
	if p.Backoff != nil {
		return p.Backoff
	}
	return &backoff.Backoff{Min: time.Second, Max: time.Minute, Factor: 2}
}

// Connector connects to a broker.
type Connector interface {
	Connect() paho.Token
}

// connect retries until the first connection succeeds, the client
// reconnects by itself afterwards.
func connect(ctx context.Context, c Connector, b *backoff.Backoff) error {
	for {
		token := c.Connect()
		if token.WaitTimeout(mqtt.DefaultTimeout) && token.Error() == nil {
			b.Reset()
			return nil
		}
		err := token.Error()
		if err == nil {
			err = mqtt.ErrTimeout
		}
		delay := b.Duration()
		glog.Warningf("telemetry connect error: %v, retry in %v", err, delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Control implements Controller.
func (p *Publisher) Control(ctx fx.ControlContext) error {
	now := ctx.Time()
	if !p.last.IsZero() && now.Sub(p.last) < p.Interval {
		return nil
	}
	p.last = now
	return p.Publish(now)
}

// Publish sends the current Stats.
func (p *Publisher) Publish(now time.Time) error {
	msg := NewStats(p.Meta.DeviceID, p.Meta.BusID, p.Stats, now)
	if p.Counter != nil {
		msg.BytesReceived = p.Counter.Received()
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return err
	}
	p.Broker.PubWith(p.topic(StatsTopic), data, 0, false)
	glog.V(2).Infof("telemetry %s", msg)
	return nil
}

func (p *Publisher) publishMeta() {
	data, err := json.Marshal(&p.Meta)
	if err != nil {
		glog.Errorf("encode meta error: %v", err)
		return
	}
	p.Broker.PubWith(p.topic(MetaTopic), data, 1, true)
}
