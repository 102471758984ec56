package helpers

import (
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseImageManifest(t *testing.T) {
	contenido := base64.StdEncoding.EncodeToString([]byte{0x90, 0x90, 0xC3})
	manifiesto := fmt.Sprintf(`
entry: 0x400100
segments:
  - virtual_address: 0x400000
    memory_size: 8192
    file_size: 3
    permissions: r-x
    content: %s
  - virtual_address: 0x402000
    memory_size: 4096
    file_size: 0
    permissions: rw-
`, contenido)

	img, err := ParseImageManifest([]byte(manifiesto))
	require.NoError(t, err)

	assert.Equal(t, uint64(0x400100), img.Entry)
	require.Len(t, img.Segments, 2)

	code := img.Segments[0]
	assert.Equal(t, uint64(0x400000), code.VirtualAddress)
	assert.Equal(t, uint64(8192), code.MemorySize)
	assert.Equal(t, []byte{0x90, 0x90, 0xC3}, code.Content)
	assert.True(t, code.Permissions.Readable)
	assert.False(t, code.Permissions.Writable)
	assert.True(t, code.Permissions.Executable)

	data := img.Segments[1]
	assert.True(t, data.Permissions.Writable)
	assert.False(t, data.Permissions.Executable)
	assert.Empty(t, data.Content)
}

func TestParseImageManifestRejectsBadPermissions(t *testing.T) {
	manifiesto := `
entry: 0x1000
segments:
  - virtual_address: 0x1000
    memory_size: 4096
    permissions: rwz
`
	_, err := ParseImageManifest([]byte(manifiesto))
	assert.Error(t, err)

	manifiesto = `
entry: 0x1000
segments:
  - virtual_address: 0x1000
    memory_size: 4096
    permissions: rw
`
	_, err = ParseImageManifest([]byte(manifiesto))
	assert.Error(t, err)
}

func TestParseImageManifestRejectsBadBase64(t *testing.T) {
	manifiesto := `
entry: 0x1000
segments:
  - virtual_address: 0x1000
    memory_size: 4096
    file_size: 4
    permissions: r--
    content: "!!!no-es-base64!!!"
`
	_, err := ParseImageManifest([]byte(manifiesto))
	assert.Error(t, err)
}

func TestParseImageManifestRejectsInvalidYAML(t *testing.T) {
	_, err := ParseImageManifest([]byte("segments: ["))
	assert.Error(t, err)
}
