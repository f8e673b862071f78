package parking

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpaces(t *testing.T) {
	t.Parallel()

	t.Run("valid document", func(t *testing.T) {
		t.Parallel()
		doc := `{
			"default_min_occupancy_ratio": 0.3,
			"spaces": [
				{"id": 1, "polygon": [[0,0],[100,0],[100,100],[0,100]]},
				{"id": 2, "polygon": [[200,0],[300,0],[300,100]], "min_occupancy_ratio": 0.5}
			]
		}`
		spaces, err := ParseSpaces([]byte(doc))
		require.NoError(t, err)
		require.Len(t, spaces, 2)
		assert.Equal(t, 1, spaces[0].ID)
		assert.InDelta(t, 0.3, spaces[0].MinOccupancyRatio, 1e-9, "document default applies")
		assert.InDelta(t, 0.5, spaces[1].MinOccupancyRatio, 1e-9, "per-space override wins")
		assert.Equal(t, SpaceUnknown, spaces[0].State)
	})

	t.Run("built-in default ratio when document omits it", func(t *testing.T) {
		t.Parallel()
		doc := `{"spaces": [{"id": 1, "polygon": [[0,0],[10,0],[10,10]]}]}`
		spaces, err := ParseSpaces([]byte(doc))
		require.NoError(t, err)
		assert.InDelta(t, DefaultMinOccupancyRatio, spaces[0].MinOccupancyRatio, 1e-9)
	})

	t.Run("object-form points accepted", func(t *testing.T) {
		t.Parallel()
		doc := `{"spaces": [{"id": 1, "polygon": [{"x":0,"y":0},{"x":10,"y":0},{"x":10,"y":10}]}]}`
		spaces, err := ParseSpaces([]byte(doc))
		require.NoError(t, err)
		assert.Equal(t, []Point{{0, 0}, {10, 0}, {10, 10}}, spaces[0].Polygon)
	})

	t.Run("polygon with fewer than three points rejected", func(t *testing.T) {
		t.Parallel()
		doc := `{"spaces": [{"id": 1, "polygon": [[0,0],[10,10]]}]}`
		_, err := ParseSpaces([]byte(doc))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("non-numeric id rejected", func(t *testing.T) {
		t.Parallel()
		doc := `{"spaces": [{"id": "seven", "polygon": [[0,0],[10,0],[10,10]]}]}`
		_, err := ParseSpaces([]byte(doc))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("non-numeric coordinate rejected", func(t *testing.T) {
		t.Parallel()
		doc := `{"spaces": [{"id": 1, "polygon": [["a",0],[10,0],[10,10]]}]}`
		_, err := ParseSpaces([]byte(doc))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("duplicate ids rejected", func(t *testing.T) {
		t.Parallel()
		doc := `{"spaces": [
			{"id": 1, "polygon": [[0,0],[10,0],[10,10]]},
			{"id": 1, "polygon": [[20,0],[30,0],[30,10]]}
		]}`
		_, err := ParseSpaces([]byte(doc))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("ratio outside unit interval rejected", func(t *testing.T) {
		t.Parallel()
		doc := `{"spaces": [{"id": 1, "polygon": [[0,0],[10,0],[10,10]], "min_occupancy_ratio": 1.5}]}`
		_, err := ParseSpaces([]byte(doc))
		assert.ErrorIs(t, err, ErrInvalidConfig)

		doc = `{"default_min_occupancy_ratio": -0.1, "spaces": [{"id": 1, "polygon": [[0,0],[10,0],[10,10]]}]}`
		_, err = ParseSpaces([]byte(doc))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("empty space list rejected", func(t *testing.T) {
		t.Parallel()
		_, err := ParseSpaces([]byte(`{"spaces": []}`))
		assert.ErrorIs(t, err, ErrInvalidConfig)
		_, err = ParseSpaces([]byte(`{}`))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("malformed JSON rejected", func(t *testing.T) {
		t.Parallel()
		_, err := ParseSpaces([]byte(`{not json`))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestLoadSpaces(t *testing.T) {
	t.Parallel()

	t.Run("loads from file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "spaces.json")
		doc := `{"spaces": [{"id": 1, "polygon": [[0,0],[10,0],[10,10]]}]}`
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

		spaces, err := LoadSpaces(path)
		require.NoError(t, err)
		assert.Len(t, spaces, 1)
	})

	t.Run("missing file is a configuration error", func(t *testing.T) {
		t.Parallel()
		_, err := LoadSpaces(filepath.Join(t.TempDir(), "nope.json"))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}
