package vecsync

import (
	"testing"

	"github.com/viant/vecshard/vector"
)

func TestWins(t *testing.T) {
	cases := []struct {
		name string
		a, b vector.Record
		aWin bool
	}{
		{
			name: "later created_at",
			a:    vector.Record{ID: 1, Version: 2, CreatedAt: 200},
			b:    vector.Record{ID: 1, Version: 9, CreatedAt: 100},
			aWin: true,
		},
		{
			name: "equal created_at falls to version",
			a:    vector.Record{ID: 1, Version: 3, CreatedAt: 100},
			b:    vector.Record{ID: 1, Version: 7, CreatedAt: 100},
			aWin: false,
		},
		{
			name: "equal version falls to blob",
			a:    vector.Record{ID: 1, Version: 3, CreatedAt: 100, Vector: []float32{2}},
			b:    vector.Record{ID: 1, Version: 3, CreatedAt: 100, Vector: []float32{1}},
			aWin: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Wins(&tc.a, &tc.b)
			want := &tc.b
			if tc.aWin {
				want = &tc.a
			}
			if got != want {
				t.Fatalf("Wins picked version %d, want %d", got.Version, want.Version)
			}
			// Commutative: swapping arguments never changes the winner.
			if swapped := Wins(&tc.b, &tc.a); swapped != got {
				t.Fatalf("Wins is not commutative: %d vs %d", got.Version, swapped.Version)
			}
		})
	}
}

func TestWins_DifferentIDsDeterministic(t *testing.T) {
	a := vector.Record{ID: 1, Version: 1, CreatedAt: 100}
	b := vector.Record{ID: 2, Version: 1, CreatedAt: 100}
	got := Wins(&a, &b)
	if swapped := Wins(&b, &a); swapped.ID != got.ID {
		t.Fatalf("id hash tiebreak not commutative: %d vs %d", got.ID, swapped.ID)
	}
}
