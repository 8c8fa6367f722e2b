package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArchive(t *testing.T) Archive {
	t.Helper()
	archive, err := NewFileArchive(t.TempDir())
	require.NoError(t, err)
	return archive
}

// TestStoreAndGetRoundTrip verifies a stored message comes back verbatim
func TestStoreAndGetRoundTrip(t *testing.T) {
	archive := newTestArchive(t)

	raw := []byte("From: lead@prospect.com\r\nSubject: Pricing\r\n\r\nHow much?\r\n")
	require.NoError(t, archive.Store("1:INBOX:42", raw))

	got, err := archive.Get("1:INBOX:42")
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

// TestStoreIsIdempotent verifies replaying a key overwrites the prior copy
func TestStoreIsIdempotent(t *testing.T) {
	archive := newTestArchive(t)

	require.NoError(t, archive.Store("1:INBOX:42", []byte("first")))
	require.NoError(t, archive.Store("1:INBOX:42", []byte("second")))

	got, err := archive.Get("1:INBOX:42")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

// TestNestedFolderStaysOneSegment verifies hierarchical folder names do not
// produce nested directories or escape the archive root
func TestNestedFolderStaysOneSegment(t *testing.T) {
	dir := t.TempDir()
	archive, err := NewFileArchive(dir)
	require.NoError(t, err)

	require.NoError(t, archive.Store("1:Clients/Active:7", []byte("body")))

	_, err = os.Stat(filepath.Join(dir, "1", "Clients_Active", "7.eml"))
	assert.NoError(t, err)

	got, err := archive.Get("1:Clients/Active:7")
	require.NoError(t, err)
	assert.Equal(t, []byte("body"), got)
}

// TestMalformedKeysAreRejected covers key validation
func TestMalformedKeysAreRejected(t *testing.T) {
	archive := newTestArchive(t)

	for _, key := range []string{"", "1", "1:INBOX", "1::5", ":INBOX:5"} {
		err := archive.Store(key, []byte("x"))
		assert.ErrorIs(t, err, ErrBadKey, "key %q", key)
	}
}

// TestTraversalKeyIsRejected verifies a hostile key cannot escape the root
func TestTraversalKeyIsRejected(t *testing.T) {
	archive := newTestArchive(t)

	err := archive.Store("..:INBOX:5", []byte("x"))
	assert.Error(t, err)

	err = archive.Store("1:INBOX:../../etc/passwd", []byte("x"))
	assert.Error(t, err)
}

// TestGetMissingKey verifies the not-found error
func TestGetMissingKey(t *testing.T) {
	archive := newTestArchive(t)

	_, err := archive.Get("1:INBOX:999")
	assert.ErrorIs(t, err, ErrRawNotFound)
}

// TestDeleteIsIdempotent verifies deleting twice is not an error
func TestDeleteIsIdempotent(t *testing.T) {
	archive := newTestArchive(t)

	require.NoError(t, archive.Store("1:INBOX:1", []byte("x")))
	require.NoError(t, archive.Delete("1:INBOX:1"))
	require.NoError(t, archive.Delete("1:INBOX:1"))

	_, err := archive.Get("1:INBOX:1")
	assert.ErrorIs(t, err, ErrRawNotFound)
}
