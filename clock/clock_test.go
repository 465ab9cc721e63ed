package clock

import (
	"testing"
	"time"
)

func TestFake_Advance(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewFake(start)

	if !c.Now().Equal(start) {
		t.Fatalf("expected %v, got %v", start, c.Now())
	}

	got := c.Advance(90 * time.Second)
	want := start.Add(90 * time.Second)
	if !got.Equal(want) || !c.Now().Equal(want) {
		t.Errorf("expected %v after advance, got %v", want, c.Now())
	}
}

func TestFake_Set(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	target := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Set(target)
	if !c.Now().Equal(target) {
		t.Errorf("expected %v, got %v", target, c.Now())
	}
}

func TestOrReal(t *testing.T) {
	if _, ok := OrReal(nil).(realClock); !ok {
		t.Error("expected nil clock to fall back to the wall clock")
	}
	f := NewFake(time.Unix(42, 0))
	if OrReal(f) != Clock(f) {
		t.Error("expected explicit clock to be returned unchanged")
	}
}

func TestFunc(t *testing.T) {
	fixed := time.Unix(100, 0)
	var c Clock = Func(func() time.Time { return fixed })
	if !c.Now().Equal(fixed) {
		t.Errorf("expected %v, got %v", fixed, c.Now())
	}
}
