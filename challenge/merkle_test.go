package challenge_test

import (
	"fmt"
	"testing"

	"github.com/xraph/dmc/challenge"
)

func leaves(n int) []challenge.Hash {
	out := make([]challenge.Hash, n)
	for i := range out {
		out[i] = challenge.Leaf([]byte(fmt.Sprintf("block-%d", i)))
	}
	return out
}

func TestDepth(t *testing.T) {
	tests := []struct {
		count uint64
		want  int
	}{
		{0, 0}, {1, 0}, {2, 1}, {3, 2}, {4, 2}, {5, 3}, {8, 3}, {9, 4},
	}
	for _, tt := range tests {
		if got := challenge.Depth(tt.count); got != tt.want {
			t.Errorf("Depth(%d): got %d, want %d", tt.count, got, tt.want)
		}
	}
}

func TestProofRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8, 13} {
		t.Run(fmt.Sprintf("%d leaves", n), func(t *testing.T) {
			ls := leaves(n)
			root := challenge.Root(ls)
			for i := range ls {
				proof, err := challenge.Proof(ls, uint64(i))
				if err != nil {
					t.Fatalf("Proof(%d): %v", i, err)
				}
				if len(proof) != challenge.Depth(uint64(n)) {
					t.Errorf("proof %d length: got %d, want %d", i, len(proof), challenge.Depth(uint64(n)))
				}
				if !challenge.Verify(root, uint64(n), uint64(i), ls[i], proof) {
					t.Errorf("leaf %d did not verify", i)
				}
			}
		})
	}
}

func TestVerifyRejectsTamperedSibling(t *testing.T) {
	ls := leaves(5)
	root := challenge.Root(ls)
	proof, err := challenge.Proof(ls, 2)
	if err != nil {
		t.Fatal(err)
	}

	for i := range proof {
		tampered := append([]challenge.Hash(nil), proof...)
		tampered[i][0] ^= 0xff
		if challenge.Verify(root, 5, 2, ls[2], tampered) {
			t.Errorf("altered sibling %d still verified", i)
		}
	}
}

func TestVerifyRejectsWrongShape(t *testing.T) {
	ls := leaves(4)
	root := challenge.Root(ls)
	proof, _ := challenge.Proof(ls, 1)

	tests := []struct {
		name  string
		index uint64
		leaf  challenge.Hash
		proof []challenge.Hash
	}{
		{"wrong leaf", 1, ls[0], proof},
		{"wrong index", 0, ls[1], proof},
		{"index past count", 4, ls[1], proof},
		{"short proof", 1, ls[1], proof[:1]},
		{"long proof", 1, ls[1], append(append([]challenge.Hash(nil), proof...), ls[3])},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if challenge.Verify(root, 4, tt.index, tt.leaf, tt.proof) {
				t.Error("expected verification to fail")
			}
		})
	}
}

func TestProofOutOfRange(t *testing.T) {
	if _, err := challenge.Proof(leaves(3), 3); err == nil {
		t.Error("expected ErrIndexOutOfRange")
	}
}

func TestHashText(t *testing.T) {
	h := challenge.Leaf([]byte("x"))
	text, err := h.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	var back challenge.Hash
	if err := back.UnmarshalText(text); err != nil {
		t.Fatal(err)
	}
	if back != h {
		t.Errorf("got %s, want %s", back, h)
	}
	if _, err := challenge.ParseHash("abcd"); err == nil {
		t.Error("short hash should be rejected")
	}
}
