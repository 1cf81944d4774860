package vecsync

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/viant/vecshard/vector"
)

// Batch frames are the wire format for shipping deltas across a process or
// network boundary: a 4-byte magic, a flags byte, and a varint-framed record
// payload, optionally zstd-compressed.
const (
	frameMagic = "VSB1"

	flagCompressed = 1 << 0
	recTombstone   = 1 << 0
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// EncodeBatch serializes records into a batch frame. With compress set the
// payload is zstd-compressed, which pays off on the float32 blobs of wide
// embeddings.
func EncodeBatch(recs []vector.Record, compress bool) ([]byte, error) {
	payload := make([]byte, 0, 64*len(recs)+16)
	payload = binary.AppendUvarint(payload, uint64(len(recs)))
	for i := range recs {
		rec := &recs[i]
		payload = binary.AppendUvarint(payload, rec.ID)
		payload = binary.AppendUvarint(payload, rec.Version)
		payload = binary.AppendUvarint(payload, uint64(rec.CreatedAt))
		var fl byte
		if rec.Tombstone {
			fl |= recTombstone
		}
		payload = append(payload, fl)
		payload = binary.AppendUvarint(payload, uint64(math.Float32bits(rec.Norm)))
		blob, err := vector.EncodeEmbedding(rec.Vector)
		if err != nil {
			return nil, fmt.Errorf("vecsync: encode record %d@%d: %w", rec.ID, rec.Version, err)
		}
		payload = binary.AppendUvarint(payload, uint64(len(blob)))
		payload = append(payload, blob...)
		payload = binary.AppendUvarint(payload, uint64(len(rec.Metadata)))
		payload = append(payload, rec.Metadata...)
	}

	var flags byte
	if compress {
		flags |= flagCompressed
		payload = zstdEncoder.EncodeAll(payload, nil)
	}
	out := make([]byte, 0, len(frameMagic)+1+len(payload))
	out = append(out, frameMagic...)
	out = append(out, flags)
	return append(out, payload...), nil
}

// DecodeBatch parses a batch frame produced by EncodeBatch.
func DecodeBatch(frame []byte) ([]vector.Record, error) {
	if len(frame) < len(frameMagic)+1 || string(frame[:len(frameMagic)]) != frameMagic {
		return nil, fmt.Errorf("vecsync: not a batch frame")
	}
	flags := frame[len(frameMagic)]
	payload := frame[len(frameMagic)+1:]
	if flags&flagCompressed != 0 {
		var err error
		payload, err = zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("vecsync: decompress batch: %w", err)
		}
	}

	r := frameReader{buf: payload}
	count := r.uvarint()
	if r.err != nil {
		return nil, fmt.Errorf("vecsync: truncated batch header")
	}
	recs := make([]vector.Record, 0, count)
	for i := uint64(0); i < count; i++ {
		var rec vector.Record
		rec.ID = r.uvarint()
		rec.Version = r.uvarint()
		rec.CreatedAt = int64(r.uvarint())
		fl := r.byte()
		rec.Tombstone = fl&recTombstone != 0
		rec.Norm = math.Float32frombits(uint32(r.uvarint()))
		blob := r.bytes(r.uvarint())
		rec.Metadata = r.bytes(r.uvarint())
		if r.err != nil {
			return nil, fmt.Errorf("vecsync: truncated batch record %d: %w", i, r.err)
		}
		if len(blob) > 0 {
			vec, err := vector.DecodeEmbedding(blob)
			if err != nil {
				return nil, fmt.Errorf("vecsync: batch record %d: %w", i, err)
			}
			rec.Vector = vec
		}
		if len(rec.Metadata) == 0 {
			rec.Metadata = nil
		}
		recs = append(recs, rec)
	}
	if len(r.buf) != 0 {
		return nil, fmt.Errorf("vecsync: %d trailing bytes in batch frame", len(r.buf))
	}
	return recs, nil
}

type frameReader struct {
	buf []byte
	err error
}

func (r *frameReader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.err = fmt.Errorf("bad varint")
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *frameReader) byte() byte {
	if r.err != nil {
		return 0
	}
	if len(r.buf) == 0 {
		r.err = fmt.Errorf("unexpected end of frame")
		return 0
	}
	b := r.buf[0]
	r.buf = r.buf[1:]
	return b
}

func (r *frameReader) bytes(n uint64) []byte {
	if r.err != nil {
		return nil
	}
	if uint64(len(r.buf)) < n {
		r.err = fmt.Errorf("unexpected end of frame")
		return nil
	}
	b := r.buf[:n:n]
	r.buf = r.buf[n:]
	return b
}
