package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	root := newRootCommand()

	for _, path := range [][]string{
		{"serve"},
		{"poll"},
		{"migrate"},
		{"mask", "to-mask"},
		{"mask", "to-apis"},
		{"key", "show"},
		{"key", "add"},
		{"key", "remove"},
		{"key", "disable"},
		{"locks", "reap"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestParseKeyID(t *testing.T) {
	id, err := parseKeyID("1234")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), id)

	for _, bad := range []string{"", "0", "-5", "abc"} {
		_, err := parseKeyID(bad)
		assert.Error(t, err, bad)
	}
}

func TestMaskToAPIsRejectsBadMask(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"mask", "to-apis", "char", "lots"})
	err := root.Execute()
	assert.ErrorContains(t, err, "mask must be an integer")
}
