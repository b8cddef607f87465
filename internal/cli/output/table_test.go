package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableRender(t *testing.T) {
	table := NewTable("Username", "SRP Group")
	require.Zero(t, table.Len())

	table.AddRow("alice", "2048")
	table.AddRow("bob", "1536")
	require.Equal(t, 2, table.Len())

	var buf bytes.Buffer
	require.NoError(t, table.Render(&buf))

	out := buf.String()
	assert.Contains(t, out, "USERNAME")
	assert.Contains(t, out, "SRP GROUP")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "2048")
	assert.Contains(t, out, "bob")
}
