package source

import (
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gogpu/telem/series"
	"github.com/gogpu/telem/tree"
)

func chunk(a uint64, values ...float64) *series.Series {
	return series.New(values, series.WithAlignment(a))
}

func TestSpecEqual(t *testing.T) {
	a := Spec{Type: "memory", Props: json.RawMessage(`{"channel": "x"}`)}
	b := Spec{Type: "memory", Props: json.RawMessage(`{"channel":"x"}`)}
	c := Spec{Type: "memory", Props: json.RawMessage(`{"channel":"y"}`)}
	if !a.Equal(b) {
		t.Error("whitespace should not matter")
	}
	if a.Equal(c) {
		t.Error("different props should differ")
	}
	if (Spec{Type: "static"}).Equal(Spec{Type: "memory"}) {
		t.Error("different types should differ")
	}
	if !(Spec{Type: "s"}).Equal(Spec{Type: "s", Props: json.RawMessage("null")}) {
		t.Error("null and absent props should be equal")
	}
	if !(Spec{}).IsZero() || a.IsZero() {
		t.Error("IsZero mismatch")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	m := NewMemory()
	m.Register(r)
	RegisterStatic(r)

	if diff := cmp.Diff([]string{MemoryType, StaticType}, r.Types()); diff != "" {
		t.Errorf("Types mismatch (-want +got):\n%s", diff)
	}
	if _, err := r.Create(Spec{Type: "nope"}); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("err = %v, want ErrUnknownSource", err)
	}
	if _, err := r.Create(Spec{Type: MemoryType, Props: json.RawMessage(`{}`)}); err == nil {
		t.Error("memory source without channel should fail")
	}
	if _, err := r.Create(MemorySpec("temp")); err != nil {
		t.Errorf("Create(memory): %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("duplicate Register should panic")
		}
	}()
	RegisterStatic(r)
}

func TestFromTree(t *testing.T) {
	r := NewRegistry()
	base := tree.NewContext(nil, nil)
	base.Set(ContextKey, r)
	got, ok := FromTree(base.Child("line"))
	if !ok || got != r {
		t.Error("FromTree should return the published registry")
	}
}

func TestMemoryWriteAndNotify(t *testing.T) {
	m := NewMemory()
	src := m.Source("temp")
	var calls atomic.Int32
	unsub := src.OnChange(func() { calls.Add(1) })

	if err := m.Write("temp", chunk(0, 1, 2, 3)); err != nil {
		t.Fatal(err)
	}
	if err := m.Write("temp", chunk(3, 4, 5)); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("notifications = %d, want 2", calls.Load())
	}

	bounds, ms, err := src.Value()
	if err != nil {
		t.Fatal(err)
	}
	if ms.Len() != 5 || len(ms.Series) != 2 {
		t.Errorf("snapshot has %d samples in %d chunks", ms.Len(), len(ms.Series))
	}
	if bounds != (series.Bounds{Lower: 1, Upper: 5}) {
		t.Errorf("bounds = %+v", bounds)
	}

	unsub()
	unsub()
	if err := m.Write("temp", chunk(5, 6)); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Error("unsubscribed callback should not fire")
	}
	if m.Subscribers("temp") != 0 {
		t.Errorf("Subscribers = %d, want 0", m.Subscribers("temp"))
	}
}

func TestMemoryRejectsOutOfOrder(t *testing.T) {
	m := NewMemory()
	if err := m.Write("c", chunk(10, 1, 2)); err != nil {
		t.Fatal(err)
	}
	err := m.Write("c", chunk(5, 3))
	if !errors.Is(err, series.ErrOverlappingAlignment) {
		t.Errorf("err = %v, want ErrOverlappingAlignment", err)
	}
	if m.Read("c").Len() != 2 {
		t.Error("rejected write must not change the channel")
	}
}

func TestMemoryRetention(t *testing.T) {
	m := NewMemory(WithRetention(2))
	for i := uint64(0); i < 5; i++ {
		if err := m.Write("c", chunk(i*10, float64(i))); err != nil {
			t.Fatal(err)
		}
	}
	ms := m.Read("c")
	var aligns []uint64
	for _, s := range ms.Series {
		aligns = append(aligns, s.Alignment())
	}
	if diff := cmp.Diff([]uint64{30, 40}, aligns); diff != "" {
		t.Errorf("retained chunks mismatch (-want +got):\n%s", diff)
	}
}

func TestMemorySnapshotIsolation(t *testing.T) {
	m := NewMemory()
	if err := m.Write("c", chunk(0, 1)); err != nil {
		t.Fatal(err)
	}
	_, before, _ := m.Source("c").Value()
	if err := m.Write("c", chunk(1, 2)); err != nil {
		t.Fatal(err)
	}
	if len(before.Series) != 1 {
		t.Error("an earlier snapshot must not observe later writes")
	}
}

func TestMemorySourceCleanup(t *testing.T) {
	m := NewMemory()
	src := m.Source("c")
	src.OnChange(func() {})
	src.OnChange(func() {})
	if m.Subscribers("c") != 2 {
		t.Fatalf("Subscribers = %d, want 2", m.Subscribers("c"))
	}
	if err := src.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if m.Subscribers("c") != 0 {
		t.Errorf("Subscribers after Cleanup = %d", m.Subscribers("c"))
	}
	if err := src.Cleanup(); err == nil {
		t.Error("second Cleanup should fail")
	}
	if diff := cmp.Diff([]string{"c"}, m.Channels()); diff != "" {
		t.Errorf("Channels mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptySourceValue(t *testing.T) {
	bounds, ms, err := NewMemory().Source("none").Value()
	if err != nil || !ms.Empty() || !bounds.IsEmpty() {
		t.Errorf("empty channel: %+v %v %v", bounds, ms.Len(), err)
	}
}

func TestStatic(t *testing.T) {
	r := NewRegistry()
	RegisterStatic(r)
	src, err := r.Create(StaticSpec(StaticProps{
		Values:    []float64{3, 1, 2},
		Alignment: 7,
		TimeRange: series.TimeRange{Start: 0, End: 3},
	}))
	if err != nil {
		t.Fatal(err)
	}
	bounds, ms, err := src.Value()
	if err != nil {
		t.Fatal(err)
	}
	if bounds != (series.Bounds{Lower: 1, Upper: 3}) {
		t.Errorf("bounds = %+v", bounds)
	}
	if ms.Series[0].Alignment() != 7 || ms.Series[0].DataType() != series.Float64 {
		t.Errorf("chunk = %v", ms.Series[0])
	}
	src.OnChange(func() { t.Error("static source should never notify") })()
	if err := src.Cleanup(); err != nil {
		t.Error(err)
	}

	empty, err := r.Create(StaticSpec(StaticProps{}))
	if err != nil {
		t.Fatal(err)
	}
	if _, ms, _ := empty.Value(); !ms.Empty() {
		t.Error("static source without values should be empty")
	}
}
