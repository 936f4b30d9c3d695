package wire

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestPoseArray_RoundTrip(t *testing.T) {
	in := &PoseArray{
		Header: Header{Seq: 42, StampNanos: 1_700_000_000_123, FrameID: "1"},
		Poses: []Pose{
			{Position: Point{X: 2, Y: 2, Z: 2}},
			{Position: Point{X: -1.5, Y: 0, Z: 3.25}, Orientation: Quaternion{X: 0.1, Y: -0.2, Z: 0.3, W: 0.9}},
			{},
		},
	}

	b, err := in.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out PoseArray
	if err := out.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(in, &out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestPoseArray_EmptyPosesPreserveCount(t *testing.T) {
	in := &PoseArray{Poses: make([]Pose, 5)}
	b, _ := in.Marshal()

	var out PoseArray
	if err := out.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(out.Poses) != 5 {
		t.Errorf("len(Poses) = %d, want 5", len(out.Poses))
	}
}

func TestHeader_KnownEncoding(t *testing.T) {
	a := &PoseArray{Header: Header{Seq: 1, FrameID: "1"}}
	b, _ := a.Marshal()

	// field 1 (header, len 5): seq=1 (08 01), frame_id="1" (1a 01 31)
	want := []byte{0x0a, 0x05, 0x08, 0x01, 0x1a, 0x01, 0x31}
	if diff := cmp.Diff(want, b); diff != "" {
		t.Errorf("encoding mismatch (-want +got):\n%s", diff)
	}
}

func TestPoseArray_SkipsUnknownFields(t *testing.T) {
	in := &PoseArray{Header: Header{Seq: 7}}
	b, _ := in.Marshal()
	b = protowire.AppendTag(b, 99, protowire.VarintType)
	b = protowire.AppendVarint(b, 123)

	var out PoseArray
	if err := out.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Header.Seq != 7 {
		t.Errorf("Seq = %d, want 7", out.Header.Seq)
	}
}

func TestPoseArray_Truncated(t *testing.T) {
	in := &PoseArray{Poses: []Pose{{Position: Point{X: 1}}}}
	b, _ := in.Marshal()

	var out PoseArray
	err := out.Unmarshal(b[:len(b)-3])
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("Unmarshal(truncated) error = %v, want ErrMalformed", err)
	}
}

func TestPoseArray_WrongWireType(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)

	var out PoseArray
	if err := out.Unmarshal(b); !errors.Is(err, ErrMalformed) {
		t.Errorf("Unmarshal error = %v, want ErrMalformed", err)
	}
}

func TestSubscribeRequest_RoundTrip(t *testing.T) {
	in := &SubscribeRequest{Topic: "all_kf_and_pts"}
	b, _ := in.Marshal()

	var out SubscribeRequest
	if err := out.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Topic != in.Topic {
		t.Errorf("Topic = %q, want %q", out.Topic, in.Topic)
	}
}

func TestCodec(t *testing.T) {
	c := Codec{}
	if c.Name() != CodecName {
		t.Errorf("Name() = %q, want %q", c.Name(), CodecName)
	}

	b, err := c.Marshal(&SubscribeRequest{Topic: "x"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var req SubscribeRequest
	if err := c.Unmarshal(b, &req); err != nil || req.Topic != "x" {
		t.Errorf("Unmarshal = %+v, %v", req, err)
	}

	if _, err := c.Marshal("not a message"); err == nil {
		t.Error("expected error marshalling non-Message")
	}
	if err := c.Unmarshal(b, new(int)); err == nil {
		t.Error("expected error unmarshalling into non-Message")
	}
}
