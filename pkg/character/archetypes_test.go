package character

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArchetype(t *testing.T) {
	desc, err := Archetype("survivor")
	assert.NoError(t, err)
	assert.Contains(t, desc, "pragmatic and resilient")

	// Keys normalize on case and whitespace.
	desc2, err := Archetype("  Survivor ")
	assert.NoError(t, err)
	assert.Equal(t, desc, desc2)

	_, err = Archetype("trickster")
	assert.ErrorContains(t, err, "unknown personality archetype")

	_, err = Archetype("")
	assert.Error(t, err)
}

func TestArchetypeKeys(t *testing.T) {
	keys := ArchetypeKeys()
	assert.Len(t, keys, 12)
	assert.IsIncreasing(t, keys)
	assert.Contains(t, keys, "commander")
	assert.Contains(t, keys, "artist")
}

func TestArchetypeDisplayName(t *testing.T) {
	assert.Equal(t, "Sovereign", ArchetypeDisplayName("sovereign"))
	assert.Equal(t, "Guardian", ArchetypeDisplayName(" GUARDIAN "))
}
