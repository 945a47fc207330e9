package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicURL(t *testing.T) {
	tests := []struct {
		base, key, want string
	}{
		{"https://cdn.lmslocal.co.uk", "competitions/1/logo.png", "https://cdn.lmslocal.co.uk/competitions/1/logo.png"},
		{"https://cdn.lmslocal.co.uk/", "/competitions/1/logo.png", "https://cdn.lmslocal.co.uk/competitions/1/logo.png"},
		{"https://cdn.lmslocal.co.uk/assets", "logo.png", "https://cdn.lmslocal.co.uk/assets/logo.png"},
		{"", "logo.png", ""},
		{"https://cdn.lmslocal.co.uk", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, publicURL(tt.base, tt.key), "%s + %s", tt.base, tt.key)
	}
}

func TestMemoryUploader(t *testing.T) {
	ctx := context.Background()
	u := NewMemoryUploader("https://cdn.test")

	res, err := u.Upload(ctx, "competitions/3/logo.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/competitions/3/logo.png", res.Location)
	assert.NotEmpty(t, res.ETag)

	data, contentType, ok := u.Object("competitions/3/logo.png")
	require.True(t, ok)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", contentType)

	require.NoError(t, u.Delete(ctx, "competitions/3/logo.png"))
	assert.ErrorIs(t, u.Delete(ctx, "competitions/3/logo.png"), ErrObjectNotFound)
}
