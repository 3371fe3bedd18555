package rooms

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "", want: "", ok: false},
		{in: "   ", want: "", ok: false},
		{in: "main", want: "0", ok: true},
		{in: " Main_Room ", want: "0", ok: true},
		{in: "LANDING", want: "A", ok: true},
		{in: "landing-page", want: "A", ok: true},
		{in: "room7", want: "7", ok: true},
		{in: "Room-07", want: "7", ok: true},
		{in: "ROOM_12", want: "12", ok: true},
		{in: "roomb", want: "B", ok: true},
		{in: "007", want: "7", ok: true},
		{in: "0", want: "0", ok: true},
		{in: "000", want: "0", ok: true},
		{in: "gallery", want: "gallery", ok: true},
		{in: "  Back Office ", want: "Back Office", ok: true},
	}
	for _, tc := range cases {
		got, ok := Normalize(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestAliasesNumeric(t *testing.T) {
	assert.Equal(t, []string{"7", "room7", "Room7", "ROOM7"}, Aliases("7"))
}

func TestAliasesMainAndLanding(t *testing.T) {
	main := Aliases("0")
	assert.Equal(t, "0", main[0])
	assert.Contains(t, main, "room0")
	assert.Contains(t, main, "main")
	assert.Contains(t, main, "MAIN")

	landing := Aliases("A")
	assert.Equal(t, "A", landing[0])
	assert.Contains(t, landing, "a")
	assert.Contains(t, landing, "roomA")
	assert.Contains(t, landing, "landing")
	assert.Contains(t, landing, "Landing")
}

func TestAliasesEmbeddedRoomReference(t *testing.T) {
	aliases := Aliases("Gallery-room7")
	assert.Equal(t, []string{"Gallery-room7", "gallery-room7", "GALLERY-ROOM7", "7", "room7", "Room7", "ROOM7"}, aliases)
}

func TestAliasesAreUnique(t *testing.T) {
	for _, key := range []string{"0", "A", "7", "x", "Lobby"} {
		aliases := Aliases(key)
		seen := map[string]bool{}
		for _, a := range aliases {
			require.False(t, seen[a], "duplicate alias %q for %q", a, key)
			seen[a] = true
		}
	}
	assert.Nil(t, Aliases("  "))
}

func TestEquivalentIdentifiersShareKey(t *testing.T) {
	for _, group := range [][]string{
		{"7", "room7", "Room7", "ROOM-7", "07"},
		{"0", "main", "Main", "room0"},
		{"A", "landing", "roomA", "rooma"},
	} {
		want, ok := Normalize(group[0])
		require.True(t, ok)
		for _, id := range group[1:] {
			got, ok := Normalize(id)
			require.True(t, ok)
			assert.Equal(t, want, got, "identifier %q", id)
		}
	}
}

func TestNormalizerMemoizesConcurrently(t *testing.T) {
	n := NewNormalizer()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key, ok := n.Normalize("room7")
			assert.True(t, ok)
			assert.Equal(t, "7", key)
			assert.Equal(t, Aliases("7"), n.Aliases(key))
		}()
	}
	wg.Wait()

	// callers may mutate the returned slice without poisoning the memo
	aliases := n.Aliases("7")
	aliases[0] = "mutated"
	assert.Equal(t, "7", n.Aliases("7")[0])
}

func TestNormalizerMemoIsBounded(t *testing.T) {
	n := NewNormalizerSize(8)
	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("room-%d-x%d", i, i)
		n.Normalize(id)
		if key, ok := n.Normalize(fmt.Sprintf("room%d", i)); ok {
			n.Aliases(key)
		}
	}
	keys, aliases := n.memoLen()
	assert.LessOrEqual(t, keys, 8)
	assert.LessOrEqual(t, aliases, 8)

	key, ok := n.Normalize("Room 7")
	assert.True(t, ok)
	assert.Equal(t, "7", key)
	assert.Equal(t, Aliases("7"), n.Aliases("7"))
}

func TestNewNormalizerSizeFallsBackToDefault(t *testing.T) {
	n := NewNormalizerSize(0)
	for i := 0; i < DefaultMemoSize+10; i++ {
		n.Normalize(fmt.Sprintf("junk-%d", i))
	}
	keys, _ := n.memoLen()
	assert.Equal(t, DefaultMemoSize, keys)
}
