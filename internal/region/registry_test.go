package region

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRegionsYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeRegionsYAML(t, `
regions:
  - name: Trnava
    boundary: "POLYGON((17.4 48.2, 17.8 48.2, 17.8 48.5, 17.4 48.5, 17.4 48.2))"
  - name: Bratislava
    boundary: "POLYGON((16.9 48.0, 17.3 48.0, 17.3 48.3, 16.9 48.3, 16.9 48.0))"
`)

	regions, err := LoadYAML(path)
	require.NoError(t, err)
	require.Len(t, regions, 2)
	assert.Equal(t, "Trnava", regions[0].Name)
	assert.Contains(t, regions[1].Boundary, "16.9 48.0")
}

func TestLoadYAML_InvalidBoundary(t *testing.T) {
	path := writeRegionsYAML(t, `
regions:
  - name: Broken
    boundary: "not a polygon"
`)

	_, err := LoadYAML(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Broken")
}

func TestLoadYAML_MissingName(t *testing.T) {
	path := writeRegionsYAML(t, `
regions:
  - boundary: "POLYGON((0 0, 1 0, 1 1, 0 1, 0 0))"
`)

	_, err := LoadYAML(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name")
}

func TestLoadYAML_Empty(t *testing.T) {
	path := writeRegionsYAML(t, `regions: []`)

	_, err := LoadYAML(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no regions")
}

func TestSync_Upserts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	path := writeRegionsYAML(t, `
regions:
  - name: Trnava
    boundary: "POLYGON((17.4 48.2, 17.8 48.2, 17.8 48.5, 17.4 48.5, 17.4 48.2))"
`)
	regions, err := LoadYAML(path)
	require.NoError(t, err)

	require.NoError(t, Sync(ctx, st, regions))
	// Syncing twice is idempotent.
	require.NoError(t, Sync(ctx, st, regions))

	stored, err := st.ListRegions(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Trnava", stored[0].Name)
}
