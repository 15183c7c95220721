package species

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
species:
  - id: 25
    key: pikachu
    types: [electric]
    base_stats: {hp: 35, atk: 55, def: 40, spa: 50, spd: 50, spe: 90}
    capture_rate: 190
    growth_rate: medium_fast
    moves_by_level:
      - {level: 1, move: 84}
      - {level: 5, move: 86}
      - {level: 10, move: 98}
      - {level: 13, move: 33}
      - {level: 18, move: 45}
moves:
  - {id: 33, key: tackle, type: normal, category: physical, power: 40, accuracy: 100, pp: 35}
  - {id: 45, key: growl, name: "Growl!", type: normal, category: status, accuracy: 100, pp: 40}
  - {id: 84, key: thunder_shock, type: electric, category: special, power: 40, accuracy: 100, pp: 30, effect: {status: paralysis, chance: 10}}
  - {id: 86, key: thunder_wave, type: electric, category: status, accuracy: 90, pp: 20, effect: {status: paralysis}}
  - {id: 98, key: quick_attack, type: normal, category: physical, power: 40, accuracy: 100, pp: 30}
items:
  - {id: full_heal, kind: medicine, cures: [all]}
  - {id: antidote, kind: medicine, cures: [poison]}
type_chart:
  electric: {water: 2, flying: 2, grass: 0.5}
`

func TestParse_DisplayNames(t *testing.T) {
	c, err := Parse([]byte(testCatalog))
	require.NoError(t, err)

	s, err := c.Species(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, "Pikachu", s.Name)

	m, err := c.Move(context.Background(), 84)
	require.NoError(t, err)
	assert.Equal(t, "Thunder Shock", m.Name)
	require.NotNil(t, m.Effect)
	assert.Equal(t, "paralysis", m.Effect.Status)

	growl, err := c.Move(context.Background(), 45)
	require.NoError(t, err)
	assert.Equal(t, "Growl!", growl.Name)

	it, ok := c.Item("full_heal")
	require.True(t, ok)
	assert.Equal(t, "Full Heal", it.Name)
	assert.True(t, it.Cure("sleep"))
}

func TestParse_UnknownMoveReference(t *testing.T) {
	_, err := Parse([]byte(`
species:
  - id: 1
    key: x
    moves_by_level:
      - {level: 1, move: 999}
`))
	assert.Error(t, err)
}

func TestCatalog_NotFound(t *testing.T) {
	c, err := Parse([]byte(testCatalog))
	require.NoError(t, err)

	_, err = c.Species(context.Background(), 151)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Move(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_Effectiveness(t *testing.T) {
	c, err := Parse([]byte(testCatalog))
	require.NoError(t, err)

	assert.Equal(t, 4.0, c.Effectiveness("electric", []string{"water", "flying"}))
	assert.Equal(t, 0.5, c.Effectiveness("electric", []string{"grass"}))
	assert.Equal(t, 1.0, c.Effectiveness("normal", []string{"grass"}))
}

func TestSpecies_Moves(t *testing.T) {
	c, err := Parse([]byte(testCatalog))
	require.NoError(t, err)
	s, _ := c.Species(context.Background(), 25)

	assert.Equal(t, []int{86}, s.MovesAt(5))
	assert.Empty(t, s.MovesAt(6))
	assert.Equal(t, []int{86, 98, 33, 45}, s.MovesUpTo(20))
	assert.Equal(t, []int{84, 86}, s.MovesUpTo(9))
}

func TestLoad_ShippedCatalog(t *testing.T) {
	c, err := Load("../../data/catalog.yaml")
	require.NoError(t, err)
	s, err := c.Species(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Bulbasaur", s.Name)
	_, ok := c.Item("master_ball")
	assert.True(t, ok)
}
