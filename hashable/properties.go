package hashable

import (
	"fmt"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/signet/digest"
)

// Prop is one hash-relevant property value. A nil Value marks an unset property;
// it still occupies its position so neighbouring values cannot shift into it.
type Prop struct {
	Name  string
	Value proto.Message
}

// Int wraps v as a google.protobuf.Int64Value.
func Int(v int64) proto.Message { return wrapperspb.Int64(v) }

// Uint wraps v as a google.protobuf.UInt64Value.
func Uint(v uint64) proto.Message { return wrapperspb.UInt64(v) }

// Str wraps v as a google.protobuf.StringValue.
func Str(v string) proto.Message { return wrapperspb.String(v) }

func Bool(v bool) proto.Message { return wrapperspb.Bool(v) }

func Float(v float64) proto.Message { return wrapperspb.Double(v) }

func Raw(v []byte) proto.Message { return wrapperspb.Bytes(v) }

// Time wraps v as a google.protobuf.Timestamp.
func Time(v time.Time) proto.Message { return timestamppb.New(v) }

// EncodeProps serializes props in the given order. Each value is packed into a
// google.protobuf.Any, marshalled deterministically and framed as a protobuf
// bytes field numbered by its position. Names are not encoded; the declaration
// order is the contract.
func EncodeProps(props ...Prop) ([]byte, error) {
	out := []byte{}
	opts := proto.MarshalOptions{Deterministic: true}
	for i, p := range props {
		var b []byte
		if p.Value != nil {
			a, err := anypb.New(p.Value)
			if err != nil {
				return nil, digest.WrapError(digest.KindEncoding, "SIG-HASH-020",
					fmt.Sprintf("pack property %q", p.Name), err)
			}
			if b, err = opts.Marshal(a); err != nil {
				return nil, digest.WrapError(digest.KindEncoding, "SIG-HASH-021",
					fmt.Sprintf("encode property %q", p.Name), err)
			}
		}
		out = protowire.AppendTag(out, protowire.Number(i+1), protowire.BytesType)
		out = protowire.AppendBytes(out, b)
	}
	return out, nil
}

// Field declares one property of a Properties bag.
type Field struct {
	Name string
	Hash bool
}

// Hashed declares a property that contributes to the digest.
func Hashed(name string) Field { return Field{Name: name, Hash: true} }

// Meta declares a property that may change without affecting the digest.
func Meta(name string) Field { return Field{Name: name} }

// Properties is a bag of named values with a fixed declaration. Only Hashed
// fields contribute to the digest, in declaration order. Setting a Hashed
// field drops the digest; setting a Meta field does not.
type Properties struct {
	Holder
	mu     sync.Mutex
	fields []Field
	index  map[string]int
	values map[string]proto.Message
}

// NewProperties declares the fields of a bag. Names must be unique.
func NewProperties(fields ...Field) (*Properties, error) {
	p := &Properties{
		fields: append([]Field(nil), fields...),
		index:  make(map[string]int, len(fields)),
		values: make(map[string]proto.Message, len(fields)),
	}
	for i, f := range fields {
		if f.Name == "" {
			return nil, digest.NewError(digest.KindInternal, "SIG-HASH-030", fmt.Sprintf("property %d has no name", i))
		}
		if _, dup := p.index[f.Name]; dup {
			return nil, digest.NewError(digest.KindInternal, "SIG-HASH-031", fmt.Sprintf("duplicate property %q", f.Name))
		}
		p.index[f.Name] = i
	}
	return p, nil
}

// Fields returns the declaration.
func (p *Properties) Fields() []Field {
	return append([]Field(nil), p.fields...)
}

// Set assigns a property. Pass nil to unset it.
func (p *Properties) Set(name string, v proto.Message) error {
	i, ok := p.index[name]
	if !ok {
		return digest.NewError(digest.KindInternal, "SIG-HASH-032", fmt.Sprintf("unknown property %q", name))
	}
	p.mu.Lock()
	if v == nil {
		delete(p.values, name)
	} else {
		p.values[name] = proto.Clone(v)
	}
	p.mu.Unlock()
	if p.fields[i].Hash {
		p.Invalidate()
	}
	return nil
}

// Get returns a copy of a property value.
func (p *Properties) Get(name string) (proto.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[name]
	if !ok {
		return nil, false
	}
	return proto.Clone(v), true
}

func (p *Properties) HashableData() ([]byte, error) {
	p.mu.Lock()
	props := make([]Prop, 0, len(p.fields))
	for _, f := range p.fields {
		if f.Hash {
			props = append(props, Prop{Name: f.Name, Value: p.values[f.Name]})
		}
	}
	p.mu.Unlock()
	return EncodeProps(props...)
}

var _ Object = (*Properties)(nil)
