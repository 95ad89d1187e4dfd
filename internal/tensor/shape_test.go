package tensor

import (
	"testing"
)

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1},
		{Shape{5}, 5},
		{Shape{2, 3, 4}, 24},
	}
	for _, tt := range tests {
		if got := tt.shape.NumElements(); got != tt.want {
			t.Errorf("%v.NumElements() = %d, want %d", tt.shape, got, tt.want)
		}
	}
}

func TestShapeComputeStrides(t *testing.T) {
	got := Shape{2, 3, 4}.ComputeStrides()
	want := []int{12, 4, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("strides = %v, want %v", got, want)
		}
	}
	if len(Shape{}.ComputeStrides()) != 0 {
		t.Error("scalar strides should be empty")
	}
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Shape
		want      Shape
		broadcast bool
		wantErr   bool
	}{
		{"same", Shape{3, 5}, Shape{3, 5}, Shape{3, 5}, false, false},
		{"column", Shape{3, 1}, Shape{3, 5}, Shape{3, 5}, true, false},
		{"bias row", Shape{8, 10}, Shape{10}, Shape{8, 10}, true, false},
		{"incompatible", Shape{3, 4}, Shape{3, 5}, nil, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, broadcast, err := BroadcastShapes(tt.a, tt.b)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) || broadcast != tt.broadcast {
				t.Errorf("got %v (broadcast=%v), want %v (broadcast=%v)", got, broadcast, tt.want, tt.broadcast)
			}
		})
	}
}

func TestBroadcastStrides(t *testing.T) {
	got := BroadcastStrides(Shape{10}, Shape{8, 10})
	if got[0] != 0 || got[1] != 1 {
		t.Errorf("strides = %v, want [0 1]", got)
	}
	got = BroadcastStrides(Shape{3, 1}, Shape{3, 5})
	if got[0] != 1 || got[1] != 0 {
		t.Errorf("strides = %v, want [1 0]", got)
	}
}
