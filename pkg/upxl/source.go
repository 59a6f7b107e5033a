package upxl

import "context"

// Source is the byte transport the decoder reads frames from.
type Source interface {
	// Available returns the number of buffered bytes without blocking.
	Available() int
	// ReadByte blocks until a byte is available and feeds it into the
	// CRC accumulator.
	ReadByte() (byte, error)
	// ResetCRC starts a new CRC accumulation.
	ResetCRC()
	// CRC returns the CRC32 accumulated since the last ResetCRC.
	CRC() uint32
	// WaitAvailable blocks until at least n bytes are buffered.
	WaitAvailable(ctx context.Context, n int) error
}

// ReadFull reads len(buf) bytes from src.
func ReadFull(src Source, buf []byte) error {
	for i := range buf {
		b, err := src.ReadByte()
		if err != nil {
			return err
		}
		buf[i] = b
	}
	return nil
}
