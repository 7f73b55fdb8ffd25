package kas

import "testing"

func TestGenerateMatrixDeterministic(t *testing.T) {
	var powHash [32]byte
	powHash[0] = 0x42
	m1 := GenerateMatrix(powHash)
	m2 := GenerateMatrix(powHash)
	if m1 != m2 {
		t.Fatalf("GenerateMatrix not deterministic for the same powhash")
	}

	powHash[0] = 0x43
	m3 := GenerateMatrix(powHash)
	if m1 == m3 {
		t.Fatalf("GenerateMatrix gave identical matrices for different powhashes")
	}
}

func TestGenerateMatrixEntriesAreNibbles(t *testing.T) {
	var powHash [32]byte
	m := GenerateMatrix(powHash)
	for r := 0; r < 64; r++ {
		for c := 0; c < 64; c++ {
			if m[r][c] > 0xF {
				t.Fatalf("m[%d][%d] = %d, not a nibble", r, c, m[r][c])
			}
		}
	}
}

func TestExpandNibblesHighNibbleFirst(t *testing.T) {
	var hash [32]byte
	hash[0] = 0xAB
	got := expandNibbles(hash)
	if got[0] != 0xA || got[1] != 0xB {
		t.Fatalf("expandNibbles(0xAB) = [%x, %x], want [a, b]", got[0], got[1])
	}
}

func TestHeavyHashDeterministic(t *testing.T) {
	var powHash, preimage [32]byte
	powHash[0] = 0x1
	preimage[0] = 0x2
	m := GenerateMatrix(powHash)

	h1 := m.HeavyHash(preimage)
	h2 := m.HeavyHash(preimage)
	if h1 != h2 {
		t.Fatalf("HeavyHash not deterministic: %x != %x", h1, h2)
	}

	preimage[0] = 0x3
	h3 := m.HeavyHash(preimage)
	if h1 == h3 {
		t.Fatalf("HeavyHash gave identical output for different preimages")
	}
}
