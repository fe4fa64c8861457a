package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/secure-element/pkg/weaver"
)

func TestParseSlot(t *testing.T) {
	n, err := parseSlot("0x10")
	require.NoError(t, err)
	assert.Equal(t, uint32(16), n)

	_, err = parseSlot("-1")
	assert.Error(t, err)
	_, err = parseSlot("0x100000000")
	assert.Error(t, err)
}

func TestParseBlock(t *testing.T) {
	b, err := parseBlock("key", "000102030405060708090A0B0C0D0E0F", 16)
	require.NoError(t, err)
	assert.Len(t, b, 16)

	b, err = parseBlock("value", "00:01:02:03 04:05:06:07 08:09:0A:0B 0C:0D:0E:0F", 16)
	require.NoError(t, err)
	assert.Equal(t, byte(0x0F), b[15])

	_, err = parseBlock("key", "0001", 16)
	assert.ErrorContains(t, err, "key of 2 bytes")
	_, err = parseBlock("value", "zz", 16)
	assert.Error(t, err)
}

func TestRootCmd_InvalidConfigFailsBeforeConnecting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seaccess.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_chunk: 600\n"), 0o600))

	tests := [][]string{
		{"--log-level", "chatty", "refresh-tag"},
		{"--config", path, "rules"},
		{"--config", filepath.Join(t.TempDir(), "absent.yaml"), "weaver", "slots"},
	}

	for _, args := range tests {
		cmd := newRootCmd()
		cmd.SetArgs(args)
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		assert.Error(t, cmd.Execute(), "%v", args)
	}
}

func TestWeaverCmd_KeyArguments(t *testing.T) {
	hexKey := "000102030405060708090A0B0C0D0E0F"

	t.Run("HexKey", func(t *testing.T) {
		w := &weaverCmd{app: &app{}}
		require.NoError(t, w.keyedArgs(1)(nil, []string{"1", hexKey, "00"}))
		assert.Error(t, w.keyedArgs(1)(nil, []string{"1", "00"}))

		slot, key, rest, err := w.slotAndKey([]string{"7", hexKey, "AA"})
		require.NoError(t, err)
		assert.Equal(t, uint32(7), slot)
		assert.Len(t, key, 16)
		assert.Equal(t, []string{"AA"}, rest)
	})

	t.Run("Passphrase", func(t *testing.T) {
		w := &weaverCmd{app: &app{}, passphrase: "1234"}
		require.NoError(t, w.keyedArgs(0)(nil, []string{"3"}))
		assert.Error(t, w.keyedArgs(0)(nil, []string{"3", hexKey}))

		slot, key, rest, err := w.slotAndKey([]string{"3"})
		require.NoError(t, err)
		assert.Equal(t, uint32(3), slot)
		assert.Equal(t, weaver.KeyFromPassphrase("1234", 3), key)
		assert.Empty(t, rest)
	})
}
