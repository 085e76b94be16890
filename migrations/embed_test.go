package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpFilesAreOrdered(t *testing.T) {
	files, err := upFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_registrations.up.sql", "002_outbox.up.sql"}, files)
}
