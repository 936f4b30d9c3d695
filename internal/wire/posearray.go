// Package wire defines the messages carried on the transport and their
// protobuf binary encoding. PoseArray mirrors geometry_msgs/PoseArray so
// existing consumers of the packed pose-array protocol can read it.
//
// Schema (proto3):
//
//	message Header     { uint32 seq = 1; int64 stamp_ns = 2; string frame_id = 3; }
//	message Point      { double x = 1; double y = 2; double z = 3; }
//	message Quaternion { double x = 1; double y = 2; double z = 3; double w = 4; }
//	message Pose       { Point position = 1; Quaternion orientation = 2; }
//	message PoseArray  { Header header = 1; repeated Pose poses = 2; }
//	message SubscribeRequest { string topic = 1; }
package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned when a message cannot be decoded.
var ErrMalformed = errors.New("malformed wire message")

// Header carries sequencing and the frame of reference.
type Header struct {
	Seq        uint32
	StampNanos int64
	FrameID    string
}

// Point is a 3D position.
type Point struct {
	X, Y, Z float64
}

// Quaternion is an orientation in x, y, z, w order.
type Quaternion struct {
	X, Y, Z, W float64
}

// Pose is a position plus orientation. Position-only records leave
// Orientation zero.
type Pose struct {
	Position    Point
	Orientation Quaternion
}

// PoseArray is the message published on both output topics.
type PoseArray struct {
	Header Header
	Poses  []Pose
}

// SubscribeRequest selects the topic a client wants to receive.
type SubscribeRequest struct {
	Topic string
}

// Marshal encodes the array.
func (a *PoseArray) Marshal() ([]byte, error) {
	var b []byte
	b = appendMessage(b, 1, appendHeader(nil, a.Header))
	for _, p := range a.Poses {
		b = appendMessage(b, 2, appendPose(nil, p))
	}
	return b, nil
}

// Unmarshal decodes b into a, replacing its contents.
func (a *PoseArray) Unmarshal(b []byte) error {
	*a = PoseArray{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			body, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, fmt.Errorf("header: %w", err)
			}
			return n, a.Header.unmarshal(body)
		case 2:
			body, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, fmt.Errorf("pose %d: %w", len(a.Poses), err)
			}
			var p Pose
			if err := p.unmarshal(body); err != nil {
				return 0, fmt.Errorf("pose %d: %w", len(a.Poses), err)
			}
			a.Poses = append(a.Poses, p)
			return n, nil
		}
		return skipField(num, typ, b)
	})
}

// Marshal encodes the request.
func (r *SubscribeRequest) Marshal() ([]byte, error) {
	var b []byte
	if r.Topic != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, r.Topic)
	}
	return b, nil
}

// Unmarshal decodes b into r.
func (r *SubscribeRequest) Unmarshal(b []byte) error {
	*r = SubscribeRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			body, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, fmt.Errorf("topic: %w", err)
			}
			r.Topic = string(body)
			return n, nil
		}
		return skipField(num, typ, b)
	})
}

func appendHeader(b []byte, h Header) []byte {
	if h.Seq != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(h.Seq))
	}
	if h.StampNanos != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(h.StampNanos))
	}
	if h.FrameID != "" {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, h.FrameID)
	}
	return b
}

func (h *Header) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1, 2:
			if typ != protowire.VarintType {
				return 0, fmt.Errorf("%w: field %d has wire type %d", ErrMalformed, num, typ)
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			if num == 1 {
				h.Seq = uint32(v)
			} else {
				h.StampNanos = int64(v)
			}
			return n, nil
		case 3:
			body, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			h.FrameID = string(body)
			return n, nil
		}
		return skipField(num, typ, b)
	})
}

func appendPose(b []byte, p Pose) []byte {
	var pos []byte
	pos = appendDouble(pos, 1, p.Position.X)
	pos = appendDouble(pos, 2, p.Position.Y)
	pos = appendDouble(pos, 3, p.Position.Z)
	b = appendMessage(b, 1, pos)

	var ori []byte
	ori = appendDouble(ori, 1, p.Orientation.X)
	ori = appendDouble(ori, 2, p.Orientation.Y)
	ori = appendDouble(ori, 3, p.Orientation.Z)
	ori = appendDouble(ori, 4, p.Orientation.W)
	return appendMessage(b, 2, ori)
}

func (p *Pose) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			body, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			return n, consumeDoubles(body, &p.Position.X, &p.Position.Y, &p.Position.Z)
		case 2:
			body, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			return n, consumeDoubles(body, &p.Orientation.X, &p.Orientation.Y, &p.Orientation.Z, &p.Orientation.W)
		}
		return skipField(num, typ, b)
	})
}

// consumeDoubles decodes fields 1..len(dst) as doubles into dst.
func consumeDoubles(b []byte, dst ...*float64) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num < 1 || int(num) > len(dst) {
			return skipField(num, typ, b)
		}
		if typ != protowire.Fixed64Type {
			return 0, fmt.Errorf("%w: field %d has wire type %d", ErrMalformed, num, typ)
		}
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return 0, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		*dst[num-1] = math.Float64frombits(v)
		return n, nil
	})
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 && !math.Signbit(v) {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendMessage(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

func consumeMessage(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("%w: expected length-delimited field, got wire type %d", ErrMalformed, typ)
	}
	body, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	return body, n, nil
}

func skipField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	return n, nil
}

// consumeFields walks the tag/value pairs in b. fn returns how many bytes
// of the value it consumed.
func consumeFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}
