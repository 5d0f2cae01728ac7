package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersions(t *testing.T) {
	versions, err := Versions()
	require.NoError(t, err)
	require.NotEmpty(t, versions)
	assert.Equal(t, "0001_scan_jobs", versions[0])
	assert.Contains(t, versions, "0002_scan_jobs_skipped")
	assert.IsNonDecreasing(t, versions)
}
