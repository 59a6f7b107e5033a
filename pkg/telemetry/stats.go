// Package telemetry publishes device counters and health over MQTT.
package telemetry

import (
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/upxl/pkg/upxl"
)

// Stats is the upxl.v1.Stats message defined in stats.proto.
type Stats struct {
	DeviceId             string   `protobuf:"bytes,1,opt,name=device_id,json=deviceId,proto3" json:"device_id,omitempty"`
	BusId                uint32   `protobuf:"varint,2,opt,name=bus_id,json=busId,proto3" json:"bus_id,omitempty"`
	CrcErrors            uint64   `protobuf:"varint,3,opt,name=crc_errors,json=crcErrors,proto3" json:"crc_errors,omitempty"`
	FrameMisses          uint64   `protobuf:"varint,4,opt,name=frame_misses,json=frameMisses,proto3" json:"frame_misses,omitempty"`
	Draws                uint64   `protobuf:"varint,5,opt,name=draws,proto3" json:"draws,omitempty"`
	Overdraws            uint64   `protobuf:"varint,6,opt,name=overdraws,proto3" json:"overdraws,omitempty"`
	InvalidRecords       uint64   `protobuf:"varint,7,opt,name=invalid_records,json=invalidRecords,proto3" json:"invalid_records,omitempty"`
	UnaddressedFrames    uint64   `protobuf:"varint,8,opt,name=unaddressed_frames,json=unaddressedFrames,proto3" json:"unaddressed_frames,omitempty"`
	Receiving            bool     `protobuf:"varint,9,opt,name=receiving,proto3" json:"receiving,omitempty"`
	Drawing              bool     `protobuf:"varint,10,opt,name=drawing,proto3" json:"drawing,omitempty"`
	BytesReceived        uint64   `protobuf:"varint,11,opt,name=bytes_received,json=bytesReceived,proto3" json:"bytes_received,omitempty"`
	Timestamp            int64    `protobuf:"varint,12,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

// Reset implements proto.Message.
func (m *Stats) Reset() { *m = Stats{} }

// String implements proto.Message.
func (m *Stats) String() string { return proto.CompactTextString(m) }

// ProtoMessage implements proto.Message.
func (*Stats) ProtoMessage() {}

func init() {
	proto.RegisterType((*Stats)(nil), "upxl.v1.Stats")
}

// Time returns Timestamp as time.Time.
func (m *Stats) Time() time.Time {
	return time.Unix(0, m.Timestamp*int64(time.Millisecond))
}

// NewStats fills a message from engine counters at now.
func NewStats(deviceID string, busID uint8, stats *upxl.Stats, now time.Time) *Stats {
	snapshot, health := stats.Snapshot(), stats.Health(now)
	return &Stats{
		DeviceId:          deviceID,
		BusId:             uint32(busID),
		CrcErrors:         snapshot.CRCErrors,
		FrameMisses:       snapshot.FrameMisses,
		Draws:             snapshot.DrawCount,
		Overdraws:         snapshot.OverDraws,
		InvalidRecords:    snapshot.InvalidRecords,
		UnaddressedFrames: snapshot.UnaddressedFrames,
		Receiving:         health.Receiving,
		Drawing:           health.Drawing,
		Timestamp:         now.UnixNano() / int64(time.Millisecond),
	}
}

// Decode parses an encoded Stats message.
func Decode(data []byte) (*Stats, error) {
	var m Stats
	if err := proto.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
