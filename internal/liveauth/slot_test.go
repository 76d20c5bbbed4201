package liveauth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestFileSlotReadWrite(t *testing.T) {
	slot := NewFileSlot(filepath.Join(t.TempDir(), "nested", ".credentials.json"))
	_, err := slot.Read()
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	require.NoError(t, slot.Write([]byte(`{"token":"a"}`)))
	got, err := slot.Read()
	require.NoError(t, err)
	assert.Equal(t, `{"token":"a"}`, string(got))
}

func TestFileSlotRejectedWriteKeepsPreviousCredentials(t *testing.T) {
	dir := t.TempDir()
	slot := NewFileSlot(filepath.Join(dir, ".credentials.json"))
	require.NoError(t, slot.Write([]byte(`{"token":"a"}`)))

	err := slot.Write([]byte(" \n"))
	assert.ErrorIs(t, err, ErrEmptyCredentials)

	got, err := slot.Read()
	require.NoError(t, err)
	assert.Equal(t, `{"token":"a"}`, string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no partial file may remain next to the credentials")
	assert.Equal(t, ".credentials.json", entries[0].Name())
}

func TestKeyringSlotReadWrite(t *testing.T) {
	keyring.MockInit()
	slot := NewKeyringSlot(ToolKeychainService)
	_, err := slot.Read()
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	require.NoError(t, slot.Write([]byte(`{"token":"b"}`)))
	got, err := slot.Read()
	require.NoError(t, err)
	assert.Equal(t, `{"token":"b"}`, string(got))
	assert.Equal(t, "keychain:"+ToolKeychainService, slot.Describe())
}
