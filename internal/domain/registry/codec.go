package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/okian/adroute/internal/domain/model"
)

// Codec names the encoding used for newly written buyer records.
type Codec string

// Supported record codecs.
const (
	CodecJSON Codec = "json"
	CodecCBOR Codec = "cbor"
)

var cborEnc = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// ParseCodec maps a config value to a Codec.
func ParseCodec(s string) (Codec, error) {
	switch c := Codec(s); c {
	case CodecJSON, CodecCBOR:
		return c, nil
	case "":
		return CodecJSON, nil
	default:
		return "", fmt.Errorf("unknown record codec %q", s)
	}
}

// Encode serializes b.
func (c Codec) Encode(b *model.Buyer) ([]byte, error) {
	if c == CodecCBOR {
		return cborEnc.Marshal(b)
	}
	return json.Marshal(b)
}

// Decode reads a record written by either codec. JSON records start with '{'
// after optional whitespace; a CBOR map never does.
func Decode(blob []byte) (*model.Buyer, error) {
	var b model.Buyer
	trimmed := bytes.TrimLeft(blob, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return nil, fmt.Errorf("%w: json: %w", ErrCorrupt, err)
		}
		return &b, nil
	}
	if err := cbor.Unmarshal(blob, &b); err != nil {
		return nil, fmt.Errorf("%w: cbor: %w", ErrCorrupt, err)
	}
	return &b, nil
}
