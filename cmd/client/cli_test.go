package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyropy/chunkup/core/model"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, params)

	params, err = parseParams([]string{"owner=alice", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"owner": "alice", "note": "a=b"}, params)

	_, err = parseParams([]string{"novalue"})
	assert.Error(t, err)

	_, err = parseParams([]string{"=x"})
	assert.Error(t, err)
}

func TestPrintUploads(t *testing.T) {
	first := model.NewUploadRecord("sessOne", "/tmp/a")
	first.Status = model.UploadStatusCompleted
	second := model.NewUploadRecord("sessOne", "/tmp/a")
	second.Status = model.UploadStatusFailed

	var out bytes.Buffer
	require.NoError(t, printUploads(&out, []*model.UploadRecord{&first, &second}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.True(t, strings.HasPrefix(lines[1], first.ID.String()))
	assert.True(t, strings.HasPrefix(lines[2], second.ID.String()))
	assert.Contains(t, lines[2], "failed")
}
