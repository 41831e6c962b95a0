package types

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

// CodecName is grpc's default content-subtype. The codec registered under it encodes the
// payments messages with the field numbers of proto/payments.proto and hands every other
// proto.Message (health checks, status details) to the protobuf runtime.
const CodecName = "proto"

type wireMessage interface {
	appendWire(b []byte) []byte
	decodeField(f *wireField)
}

type wireCodec struct{}

func (wireCodec) Marshal(v interface{}) ([]byte, error) {
	switch m := v.(type) {
	case wireMessage:
		return m.appendWire(nil), nil
	case proto.Message:
		return proto.Marshal(m)
	default:
		return nil, fmt.Errorf("proto codec: cannot marshal %T", v)
	}
}

func (wireCodec) Unmarshal(data []byte, v interface{}) error {
	switch m := v.(type) {
	case wireMessage:
		return unmarshalWire(data, m)
	case proto.Message:
		return proto.Unmarshal(data, m)
	default:
		return fmt.Errorf("proto codec: cannot unmarshal into %T", v)
	}
}

func (wireCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(wireCodec{})
}

func unmarshalWire(b []byte, m wireMessage) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		f := wireField{num: num, typ: typ, b: b[n:]}
		m.decodeField(&f)
		if f.err != nil {
			return f.err
		}
		b = f.b[f.n:]
	}
	return nil
}

// wireField is one tagged field being decoded; n is the size of its value once consumed.
type wireField struct {
	num protowire.Number
	typ protowire.Type
	b   []byte
	n   int
	err error
}

func (f *wireField) expect(typ protowire.Type) bool {
	if f.typ != typ {
		f.err = fmt.Errorf("proto codec: field %d has wire type %d, want %d", f.num, f.typ, typ)
		return false
	}
	return true
}

func (f *wireField) skip() {
	f.n = protowire.ConsumeFieldValue(f.num, f.typ, f.b)
	if f.n < 0 {
		f.err = protowire.ParseError(f.n)
	}
}

func (f *wireField) bytesValue() []byte {
	if !f.expect(protowire.BytesType) {
		return nil
	}
	v, n := protowire.ConsumeBytes(f.b)
	if n < 0 {
		f.err = protowire.ParseError(n)
		return nil
	}
	f.n = n
	return v
}

func (f *wireField) stringValue() string {
	return string(f.bytesValue())
}

func (f *wireField) optionalStringValue() *string {
	v := f.stringValue()
	if f.err != nil {
		return nil
	}
	return &v
}

func (f *wireField) varintValue() uint64 {
	if !f.expect(protowire.VarintType) {
		return 0
	}
	v, n := protowire.ConsumeVarint(f.b)
	if n < 0 {
		f.err = protowire.ParseError(n)
		return 0
	}
	f.n = n
	return v
}

func (f *wireField) int64Value() int64 {
	return int64(f.varintValue())
}

func (f *wireField) int32Value() int32 {
	return int32(f.varintValue())
}

func (f *wireField) boolValue() bool {
	return protowire.DecodeBool(f.varintValue())
}

func (f *wireField) message(m wireMessage) {
	raw := f.bytesValue()
	if f.err != nil {
		return
	}
	f.err = unmarshalWire(raw, m)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// appendOptionalString keeps explicit presence: a set empty string is still written.
func appendOptionalString(b []byte, num protowire.Number, v *string) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, *v)
}

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	return appendInt64(b, num, int64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendMessage(b []byte, num protowire.Number, m wireMessage) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.appendWire(nil))
}
