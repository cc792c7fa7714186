package opsboard

import (
	"slices"
	"testing"
)

func TestHistoryAppend(t *testing.T) {
	h := NewHistory[string](3)

	for _, p := range []string{"P1", "P2", "P3", "P4"} {
		h.Append(p)
	}

	want := []string{"P2", "P3", "P4"}
	if got := h.Points(); !slices.Equal(got, want) {
		t.Errorf("Points() = %v, want %v", got, want)
	}
	if h.Len() != 3 {
		t.Errorf("Len() = %d, want 3", h.Len())
	}
}

func TestHistoryKeepsMostRecent(t *testing.T) {
	for _, capacity := range []int{1, 2, 5, 10, 24, 30} {
		h := NewHistory[int](capacity)
		for i := 0; i <= capacity; i++ {
			h.Append(i)
		}

		got := h.Points()
		if len(got) != capacity {
			t.Fatalf("capacity %d: Len = %d", capacity, len(got))
		}
		for i, v := range got {
			if v != i+1 {
				t.Errorf("capacity %d: Points()[%d] = %d, want %d", capacity, i, v, i+1)
			}
		}
	}
}

func TestHistoryNewest(t *testing.T) {
	h := NewHistory[int](4)
	for i := 1; i <= 3; i++ {
		h.Append(i)
	}

	if got, want := h.Newest(), []int{3, 2, 1}; !slices.Equal(got, want) {
		t.Errorf("Newest() = %v, want %v", got, want)
	}
	if got, want := h.Points(), []int{1, 2, 3}; !slices.Equal(got, want) {
		t.Errorf("Points() = %v, want %v after Newest()", got, want)
	}
}

func TestHistoryPointsAreCopies(t *testing.T) {
	h := NewHistory[int](3)
	h.Append(1)
	h.Append(2)

	pts := h.Points()
	pts[0] = 99

	if got := h.Points()[0]; got != 1 {
		t.Errorf("stored entry changed to %d through returned slice", got)
	}
}

func TestHistoryEvictionDoesNotAliasSnapshots(t *testing.T) {
	h := NewHistory[int](2)
	h.Append(1)
	h.Append(2)
	before := h.Points()

	h.Append(3)

	if !slices.Equal(before, []int{1, 2}) {
		t.Errorf("earlier Points() = %v, want [1 2]", before)
	}
}

func TestHistoryClear(t *testing.T) {
	h := NewHistory[int](3)
	h.Append(1)
	h.Clear()

	if h.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after Clear()", h.Len())
	}
	if _, ok := h.Last(); ok {
		t.Error("Last() should report empty after Clear()")
	}
	if h.Cap() != 3 {
		t.Errorf("Cap() = %d, want 3", h.Cap())
	}
}

func TestHistoryLast(t *testing.T) {
	h := NewHistory[string](2)
	h.Append("a")
	h.Append("b")

	got, ok := h.Last()
	if !ok || got != "b" {
		t.Errorf("Last() = %q, %v, want %q, true", got, ok, "b")
	}
}

func TestHistoryNonPositiveCapacity(t *testing.T) {
	h := NewHistory[int](0)
	h.Append(1)
	h.Append(2)

	if h.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1", h.Cap())
	}
	if got := h.Points(); !slices.Equal(got, []int{2}) {
		t.Errorf("Points() = %v, want [2]", got)
	}
}
