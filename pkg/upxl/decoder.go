package upxl

import (
	"encoding/binary"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/physic"

	"github.com/robotalks/upxl/pkg/bitplane"
	"github.com/robotalks/upxl/pkg/framework"
)

// DecoderState is the state of the frame decoder.
type DecoderState int

// Decoder states.
const (
	StateAwaitingMagic DecoderState = iota // scanning for "UPXL"
	StateHeaderRead                        // reading channel and record type
	StateRecordDispatch                    // reading record payload and CRC
)

// String implements fmt.Stringer.
func (s DecoderState) String() string {
	switch s {
	case StateAwaitingMagic:
		return "awaiting-magic"
	case StateHeaderRead:
		return "header-read"
	case StateRecordDispatch:
		return "record-dispatch"
	}
	return "unknown"
}

// Outcome is the result of decoding one frame.
type Outcome int

// Decode outcomes.
const (
	OutcomeNone Outcome = iota
	// OutcomeFrameMiss means the magic did not match.
	OutcomeFrameMiss
	// OutcomeApplied means a channel was updated.
	OutcomeApplied
	// OutcomeCRCError means the frame was corrupted.
	OutcomeCRCError
	// OutcomeUnaddressed means the frame targets another bus.
	OutcomeUnaddressed
	// OutcomeInvalid means the record was out of range or unknown.
	OutcomeInvalid
	// OutcomeDrawn means a draw was started.
	OutcomeDrawn
	// OutcomeDrawRejected means a DrawAll did not start a draw.
	OutcomeDrawRejected
)

var outcomeNames = [...]string{
	OutcomeNone:         "none",
	OutcomeFrameMiss:    "frame-miss",
	OutcomeApplied:      "applied",
	OutcomeCRCError:     "crc-error",
	OutcomeUnaddressed:  "unaddressed",
	OutcomeInvalid:      "invalid",
	OutcomeDrawn:        "drawn",
	OutcomeDrawRejected: "draw-rejected",
}

// String implements fmt.Stringer.
func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// TailFill is the value written into APA102 data beyond the new length.
type TailFill int

// Tail fill values.
const (
	TailZero TailFill = iota
	TailOne
)

// DefaultBrightness is the APA102 global brightness (5 bits).
const DefaultBrightness = 31

// Decoder reads frames from Source and applies them to Table and Buffer.
type Decoder struct {
	Source    Source
	Table     *Table
	Buffer    *bitplane.Buffer
	Scheduler *Scheduler
	Stats     *Stats
	Clock     framework.TimeSource

	BusID  uint8
	UseCRC bool
	// Brightness is or'ed with 0xE0 into every APA102 LED frame.
	Brightness uint8
	// APA102Tail fills APA102 data beyond a shrunk length.
	APA102Tail TailFill

	state DecoderState
}

// State returns the current state.
func (d *Decoder) State() DecoderState {
	return d.state
}

// Decode reads and handles one frame. Errors are only returned from the
// Source, protocol problems are reported by Outcome and counted in Stats.
func (d *Decoder) Decode() (Outcome, error) {
	d.state = StateAwaitingMagic
	d.Source.ResetCRC()
	for _, m := range Magic {
		b, err := d.Source.ReadByte()
		if err != nil {
			return OutcomeNone, err
		}
		if b != m {
			d.Stats.FrameMisses.Inc()
			glog.V(1).Infof("frame miss %02x", b)
			return OutcomeFrameMiss, nil
		}
	}
	d.Stats.LastData.Mark(d.Clock.Time())

	d.state = StateHeaderRead
	var hdr [HeaderSize - len(Magic)]byte
	if err := ReadFull(d.Source, hdr[:]); err != nil {
		return OutcomeNone, err
	}
	addr, typ := Address(hdr[0]), RecordType(hdr[1])

	d.state = StateRecordDispatch
	var (
		outcome Outcome
		err     error
	)
	switch typ {
	case RecordSetWS2812:
		outcome, err = d.setWS2812(addr)
	case RecordDrawAll:
		outcome, err = d.drawAll()
	case RecordSetAPA102Data:
		outcome, err = d.setAPA102Data(addr)
	case RecordSetAPA102Clock:
		outcome, err = d.setAPA102Clock(addr)
	default:
		d.Stats.InvalidRecords.Inc()
		glog.V(1).Infof("unknown record %s", typ)
		outcome = OutcomeInvalid
	}
	if err == nil {
		d.state = StateAwaitingMagic
	}
	return outcome, err
}

func (d *Decoder) setWS2812(addr Address) (Outcome, error) {
	var hdr [ws2812HeaderSize]byte
	if err := ReadFull(d.Source, hdr[:]); err != nil {
		return OutcomeNone, err
	}
	cfg := WS2812{
		Elements: hdr[0],
		Order:    ColorOrder(hdr[1]),
		Pixels:   binary.LittleEndian.Uint16(hdr[2:]),
	}
	if cfg.Elements < 3 || cfg.Elements > 4 || cfg.ByteLen() > d.Buffer.Capacity() {
		return d.invalid(addr, cfg)
	}

	output := addr.Remap(d.BusID)
	pos := cfg.Order.Positions()
	var in, pixel [4]byte
	elements := int(cfg.Elements)
	for p := 0; p < int(cfg.Pixels); p++ {
		if err := ReadFull(d.Source, in[:elements]); err != nil {
			return OutcomeNone, err
		}
		for e := 0; e < elements; e++ {
			pixel[pos[e]] = in[e]
		}
		d.Buffer.Encode(p*elements, output, pixel[:elements])
	}
	return d.commit(output, cfg)
}

func (d *Decoder) setAPA102Data(addr Address) (Outcome, error) {
	var hdr [apa102DataHeaderSize]byte
	if err := ReadFull(d.Source, hdr[:]); err != nil {
		return OutcomeNone, err
	}
	cfg := APA102Data{
		Frequency: physic.Frequency(binary.LittleEndian.Uint32(hdr[:])) * physic.Hertz,
		Order:     ColorOrder(hdr[4]),
		Pixels:    binary.LittleEndian.Uint16(hdr[5:]),
	}
	if cfg.Frequency == 0 || cfg.ByteLen() > d.Buffer.Capacity() {
		return d.invalid(addr, cfg)
	}

	output := addr.Remap(d.BusID)
	pos := cfg.Order.Positions()
	d.Buffer.Encode(0, output, []byte{0, 0, 0, 0})
	var in [3]byte
	var led [5]byte
	led[0] = 0xe0 | d.Brightness&0x1f
	for p := 0; p < int(cfg.Pixels); p++ {
		if err := ReadFull(d.Source, in[:]); err != nil {
			return OutcomeNone, err
		}
		for e := range in {
			led[pos[e]+1] = in[e]
		}
		d.Buffer.Encode((p+1)*4, output, led[:4])
	}
	d.Buffer.Encode((int(cfg.Pixels)+1)*4, output, []byte{0xff, 0, 0, 0})
	return d.commit(output, cfg)
}

func (d *Decoder) setAPA102Clock(addr Address) (Outcome, error) {
	var hdr [apa102ClockHeaderSize]byte
	if err := ReadFull(d.Source, hdr[:]); err != nil {
		return OutcomeNone, err
	}
	cfg := APA102Clock{Frequency: physic.Frequency(binary.LittleEndian.Uint32(hdr[:])) * physic.Hertz}
	if cfg.Frequency == 0 {
		return d.invalid(addr, cfg)
	}
	return d.commit(addr.Remap(d.BusID), cfg)
}

func (d *Decoder) drawAll() (Outcome, error) {
	ok, err := d.checkCRC()
	if err != nil {
		return OutcomeNone, err
	}
	if !ok {
		d.Stats.CRCErrors.Inc()
		glog.V(1).Info("crc error: draw")
		return OutcomeCRCError, nil
	}
	if d.Scheduler.StartDraw(d.Table, d.Buffer) != DrawStarted {
		return OutcomeDrawRejected, nil
	}
	return OutcomeDrawn, nil
}

// invalid abandons a record before its pixel data, the remaining bytes
// are skipped by magic scanning.
func (d *Decoder) invalid(addr Address, cfg Config) (Outcome, error) {
	d.Stats.InvalidRecords.Inc()
	glog.V(1).Infof("invalid record on %02x: %#v", byte(addr), cfg)
	return OutcomeInvalid, nil
}

func (d *Decoder) commit(output uint8, cfg Config) (Outcome, error) {
	ok, err := d.checkCRC()
	if err != nil {
		return OutcomeNone, err
	}
	if output == NoOutput {
		d.Stats.UnaddressedFrames.Inc()
		if !ok {
			d.Stats.CRCErrors.Inc()
		}
		return OutcomeUnaddressed, nil
	}
	capacity := d.Buffer.Capacity()
	if !ok {
		d.Stats.CRCErrors.Inc()
		d.Table[output] = disabled(cfg)
		d.Buffer.Zero(0, output, capacity)
		glog.V(1).Infof("crc error: output %d %s", output, cfg.Kind())
		return OutcomeCRCError, nil
	}
	prev, length := d.Table[output], cfg.ByteLen()
	if prev == nil || prev.Kind() != cfg.Kind() || length < prev.ByteLen() {
		if _, isData := cfg.(APA102Data); isData && d.APA102Tail == TailOne {
			d.Buffer.One(length, output, capacity-length)
		} else {
			d.Buffer.Zero(length, output, capacity-length)
		}
	}
	d.Table[output] = cfg
	d.Stats.LastValidChannel.Mark(d.Clock.Time())
	return OutcomeApplied, nil
}

// checkCRC compares the accumulated CRC with the trailing value.
func (d *Decoder) checkCRC() (bool, error) {
	if !d.UseCRC {
		return true, nil
	}
	sum := d.Source.CRC()
	var trailer [CRCSize]byte
	if err := ReadFull(d.Source, trailer[:]); err != nil {
		return false, err
	}
	return binary.LittleEndian.Uint32(trailer[:]) == sum, nil
}
