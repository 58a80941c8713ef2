package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
)

// stripeHeader is exchanged on every stripe before the first payload
// byte (spec.md §4.3 "Handshake"): expected file size, stripe offset,
// stripe length, a 16-bit verify cookie, and (when the checksum
// policy calls for it) the expected checksum for that stripe.
type stripeHeader struct {
	FileSize   int64
	Offset     int64
	Length     int64
	Cookie     uint16
	HasSum     bool
	ExpectSum  uint32
}

func writeHeader(w io.Writer, h stripeHeader) error {
	buf := make([]byte, 8+8+8+2+1+4)
	binary.BigEndian.PutUint64(buf[0:8], uint64(h.FileSize))
	binary.BigEndian.PutUint64(buf[8:16], uint64(h.Offset))
	binary.BigEndian.PutUint64(buf[16:24], uint64(h.Length))
	binary.BigEndian.PutUint16(buf[24:26], h.Cookie)
	if h.HasSum {
		buf[26] = 1
	}
	binary.BigEndian.PutUint32(buf[27:31], h.ExpectSum)
	_, err := w.Write(buf)
	return err
}

func readHeader(r io.Reader) (stripeHeader, error) {
	buf := make([]byte, 8+8+8+2+1+4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return stripeHeader{}, err
	}
	h := stripeHeader{
		FileSize: int64(binary.BigEndian.Uint64(buf[0:8])),
		Offset:   int64(binary.BigEndian.Uint64(buf[8:16])),
		Length:   int64(binary.BigEndian.Uint64(buf[16:24])),
		Cookie:   binary.BigEndian.Uint16(buf[24:26]),
		HasSum:   buf[26] == 1,
	}
	h.ExpectSum = binary.BigEndian.Uint32(buf[27:31])
	return h, nil
}

// stripeTrailer is exchanged at the close of the stripe: the observed
// checksum and bytes-written count (spec.md §4.3).
type stripeTrailer struct {
	ObservedSum uint32
	BytesMoved  int64
}

func writeTrailer(w io.Writer, t stripeTrailer) error {
	buf := make([]byte, 4+8)
	binary.BigEndian.PutUint32(buf[0:4], t.ObservedSum)
	binary.BigEndian.PutUint64(buf[4:12], uint64(t.BytesMoved))
	_, err := w.Write(buf)
	return err
}

func readTrailer(r io.Reader) (stripeTrailer, error) {
	buf := make([]byte, 4+8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return stripeTrailer{}, err
	}
	return stripeTrailer{
		ObservedSum: binary.BigEndian.Uint32(buf[0:4]),
		BytesMoved:  int64(binary.BigEndian.Uint64(buf[4:12])),
	}, nil
}

func newCookie() uint16 {
	return uint16(rand.Intn(1 << 16))
}

// verifyHeader checks that a received header matches the geometry the
// sender and receiver agreed on out of band (via the control record),
// failing closed on any mismatch (spec.md §4.3 "Failure").
func verifyHeader(got, want stripeHeader) error {
	if got.FileSize != want.FileSize || got.Offset != want.Offset || got.Length != want.Length {
		return fmt.Errorf("transport: stripe geometry mismatch: got %+v want %+v", got, want)
	}
	return nil
}
