// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBufferGrow(t *testing.T) {
	c := newTestContext(t)
	b := c.NewBuffer("samples")
	if b.Raw() != nil {
		t.Fatal("NewBuffer should not allocate")
	}

	if err := b.Write(make([]byte, 100)); err != nil {
		t.Fatal(err)
	}
	if b.Cap() != minBufferSize || b.Len() != 100 {
		t.Errorf("cap/len = %d/%d, want %d/100", b.Cap(), b.Len(), minBufferSize)
	}
	first := b.Raw()

	if err := b.Write(make([]byte, 200)); err != nil {
		t.Fatal(err)
	}
	if b.Raw() != first {
		t.Error("a write that fits should reuse the allocation")
	}

	if err := b.Write(make([]byte, 1000)); err != nil {
		t.Fatal(err)
	}
	if b.Cap() != 1024 {
		t.Errorf("cap = %d, want 1024", b.Cap())
	}
	if st := c.Stats(); st.Buffers != 1 || st.BufferBytes != 1024 {
		t.Errorf("stats = %+v, want one 1024-byte buffer", st)
	}

	if err := b.Write(make([]byte, 7)); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 8 {
		t.Errorf("len = %d, want 8 after padding", b.Len())
	}

	b.Release()
	b.Release()
	if st := c.Stats(); st.Buffers != 0 || st.BufferBytes != 0 {
		t.Errorf("stats after Release = %+v", st)
	}
}

func TestBufferSamples(t *testing.T) {
	c := newTestContext(t)
	b := c.NewBuffer("ints")
	defer b.Release()
	if err := b.WriteInt32s([]int32{-1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if b.Samples() != 3 {
		t.Errorf("Samples = %d, want 3", b.Samples())
	}
	if err := b.Write(nil); err != nil {
		t.Fatal(err)
	}
	if b.Samples() != 0 {
		t.Errorf("Samples after empty write = %d", b.Samples())
	}
}

func TestLineUniformsBytes(t *testing.T) {
	u := LineUniforms{
		Scale:     [2]float32{1, 2},
		Offset:    [2]float32{3, 4},
		Color:     [4]float32{5, 6, 7, 8},
		Thickness: [2]float32{9, 10},
	}
	b := u.Bytes()
	if len(b) != uniformSize {
		t.Fatalf("len = %d, want %d", len(b), uniformSize)
	}
	got := make([]float32, uniformSize/4)
	for i := range got {
		got[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	want := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 0, 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
}

func TestUniformsLifecycle(t *testing.T) {
	c := newTestContext(t)
	u, err := c.NewUniforms("line")
	if err != nil {
		t.Fatal(err)
	}
	v := LineUniforms{Color: [4]float32{1, 0, 0, 1}}
	u.Write(v)
	u.Write(v)
	if u.Current() != v {
		t.Error("Current should return the last write")
	}
	if c.Stats().Buffers != 1 {
		t.Errorf("Buffers = %d, want 1", c.Stats().Buffers)
	}
	u.Release()
	u.Release()
	if c.Stats().Buffers != 0 {
		t.Errorf("Buffers after Release = %d, want 0", c.Stats().Buffers)
	}
}
