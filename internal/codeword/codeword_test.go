package codeword

import (
	"errors"
	"image"
	"testing"
)

func TestNew_AllUnassigned(t *testing.T) {
	m := New(4, 3)
	if m.Width() != 4 || m.Height() != 3 {
		t.Fatalf("unexpected size %dx%d", m.Width(), m.Height())
	}
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			if m.At(x, y).Assigned {
				t.Errorf("cell (%d,%d) should be unassigned", x, y)
			}
		}
	}
	if n := m.AssignedCount(); n != 0 {
		t.Errorf("AssignedCount() = %d, want 0", n)
	}
}

func TestNewFilled(t *testing.T) {
	m := NewFilled(3, 2, 0)
	if n := m.AssignedCount(); n != 6 {
		t.Fatalf("AssignedCount() = %d, want 6", n)
	}
	if c := m.At(2, 1); c != ValueCell(0) {
		t.Errorf("At(2,1) = %v, want 0", c)
	}
}

func TestSetUnsetAndBounds(t *testing.T) {
	m := New(2, 2)
	m.Set(1, 0, 42)
	if c := m.At(1, 0); !c.Assigned || c.Value != 42 {
		t.Errorf("At(1,0) = %+v", c)
	}
	m.Unset(1, 0)
	if m.At(1, 0).Assigned {
		t.Error("Unset did not clear cell")
	}

	// Out of range writes are ignored and reads are unassigned.
	m.Set(5, 5, 1)
	if m.At(5, 5).Assigned || m.At(-1, 0).Assigned {
		t.Error("out of range cell reported as assigned")
	}
}

func TestCellRaw(t *testing.T) {
	if Unassigned().Raw() != NoValue {
		t.Error("unassigned cell should flatten to NoValue")
	}
	if ValueCell(7).Raw() != 7 {
		t.Error("assigned cell should flatten to its value")
	}
	if Unassigned().String() != "-" || ValueCell(3).String() != "3" {
		t.Error("unexpected String() output")
	}
}

func TestRowAliasesStorage(t *testing.T) {
	m := New(3, 2)
	vals, assigned := m.Row(1)
	if len(vals) != 3 || len(assigned) != 3 {
		t.Fatalf("row length = %d/%d, want 3", len(vals), len(assigned))
	}
	vals[2] = 9
	assigned[2] = true
	if c := m.At(2, 1); c != ValueCell(9) {
		t.Errorf("write through Row not visible: %+v", c)
	}
	if v, a := m.Row(7); v != nil || a != nil {
		t.Error("out of range row should be nil")
	}
}

func TestCloneIsDeep(t *testing.T) {
	m := New(2, 1)
	m.Set(0, 0, 5)
	c := m.Clone()
	c.Set(0, 0, 6)
	if m.At(0, 0).Value != 5 {
		t.Error("Clone shares storage with original")
	}
	if m.Equal(c) {
		t.Error("Equal should report difference")
	}
	c.Set(0, 0, 5)
	if !m.Equal(c) {
		t.Error("Equal should report identical images")
	}
}

func TestRawAndFromRaw(t *testing.T) {
	m := New(3, 1)
	m.Set(0, 0, 2)
	m.Set(2, 0, 0)

	raw := m.Raw()
	want := []uint16{2, NoValue, 0}
	for i := range want {
		if raw[i] != want[i] {
			t.Errorf("Raw()[%d] = %d, want %d", i, raw[i], want[i])
		}
	}

	back, err := FromRaw(3, 1, raw)
	if err != nil {
		t.Fatalf("FromRaw: %v", err)
	}
	if !back.Equal(m) {
		t.Error("FromRaw(Raw()) differs from original")
	}

	if _, err := FromRaw(2, 2, raw); !errors.Is(err, ErrBufferSize) {
		t.Errorf("expected ErrBufferSize, got %v", err)
	}
}

func TestGray16RoundTrip(t *testing.T) {
	m := New(2, 2)
	m.Set(0, 0, 10)
	m.Set(1, 1, 0x7FFE)

	g := m.ToGray16()
	if g.Bounds() != image.Rect(0, 0, 2, 2) {
		t.Fatalf("bounds = %v", g.Bounds())
	}
	if v := g.Gray16At(1, 0).Y; v != NoValue {
		t.Errorf("unassigned pixel exported as %d, want NoValue", v)
	}

	back := FromGray16(g)
	if !back.Equal(m) {
		t.Error("FromGray16(ToGray16()) differs from original")
	}
}

func TestFromGray16_NonZeroOrigin(t *testing.T) {
	g := image.NewGray16(image.Rect(5, 5, 7, 6))
	for x := 5; x < 7; x++ {
		g.Pix[g.PixOffset(x, 5)] = 0
		g.Pix[g.PixOffset(x, 5)+1] = byte(x)
	}
	m := FromGray16(g)
	if m.Width() != 2 || m.Height() != 1 {
		t.Fatalf("size = %dx%d", m.Width(), m.Height())
	}
	if m.At(0, 0).Value != 5 || m.At(1, 0).Value != 6 {
		t.Errorf("unexpected values %v %v", m.At(0, 0), m.At(1, 0))
	}
}
