package binary

import (
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/S1riyS/vnodefs/internal/models"
)

func TestNodeMetaLayout(t *testing.T) {
	meta := &models.NodeMeta{
		Ino:   0x0102030405060708,
		Dev:   2,
		Type:  models.NodeTypeCharDev,
		Mode:  0o020666,
		Nlink: 1,
		Rdev:  259,
		Size:  -1,
	}

	data, err := EncodeNodeMeta(meta)
	require.NoError(t, err)
	require.Len(t, data, NodeMetaSize)
	assert.Equal(t, []byte{8, 7, 6, 5, 4, 3, 2, 1}, data[:8])
	assert.Equal(t, []byte{2, 0}, data[16:18])

	got, err := DecodeNodeMeta(data)
	require.NoError(t, err)
	if diff := cmp.Diff(meta, got); diff != "" {
		t.Errorf("decoded meta mismatch (-want +got):\n%s", diff)
	}

	_, err = DecodeNodeMeta(data[1:])
	assert.Error(t, err)
}

func TestWriteResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteInt64Response(rec, -2, 42))

	code, payload, err := ReadResponse(rec.Body.Bytes())
	require.NoError(t, err)
	assert.EqualValues(t, -2, code)
	assert.Equal(t, []byte{42, 0, 0, 0, 0, 0, 0, 0}, payload)
	assert.Equal(t, "16", rec.Header().Get("Content-Length"))

	_, _, err = ReadResponse([]byte{1})
	assert.Error(t, err)
}
