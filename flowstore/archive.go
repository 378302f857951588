package flowstore

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/c360/flowcanvas/errors"
)

// archiveMagic prefixes every archive so foreign files fail fast.
var archiveMagic = []byte("FCA1")

// ArchiveCodec encodes documents as zstd-compressed msgpack. It is safe for
// concurrent use; Close releases the compressor.
type ArchiveCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewArchiveCodec creates a codec.
func NewArchiveCodec() (*ArchiveCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, errors.WrapFatal(err, "ArchiveCodec", "NewArchiveCodec", "create encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, errors.WrapFatal(err, "ArchiveCodec", "NewArchiveCodec", "create decoder")
	}
	return &ArchiveCodec{encoder: enc, decoder: dec}, nil
}

// Encode serialises doc.
func (c *ArchiveCodec) Encode(doc *FlowDocument) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(doc); err != nil {
		return nil, errors.WrapInvalid(err, "ArchiveCodec", "Encode", "msgpack encode")
	}
	out := append([]byte(nil), archiveMagic...)
	return c.encoder.EncodeAll(buf.Bytes(), out), nil
}

// Decode reverses Encode and migrates the result to the canonical schema.
func (c *ArchiveCodec) Decode(data []byte) (*FlowDocument, error) {
	if !bytes.HasPrefix(data, archiveMagic) {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: missing archive header", errors.ErrDataCorrupted),
			"ArchiveCodec", "Decode", "header check")
	}
	raw, err := c.decoder.DecodeAll(data[len(archiveMagic):], nil)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrDataCorrupted, err),
			"ArchiveCodec", "Decode", "decompress")
	}

	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	dec.SetCustomStructTag("json")
	dec.UseLooseInterfaceDecoding(true)
	var doc FlowDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"ArchiveCodec", "Decode", "msgpack decode")
	}
	Migrate(&doc)
	doc.normalize()
	return &doc, nil
}

// Close releases codec resources.
func (c *ArchiveCodec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}
