package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowedContentType(t *testing.T) {
	assert.True(t, AllowedContentType("image/png"))
	assert.True(t, AllowedContentType("Text/Plain; charset=utf-8"))
	assert.False(t, AllowedContentType("application/x-msdownload"))
	assert.False(t, AllowedContentType(""))
}

func TestObjectKey(t *testing.T) {
	a := ObjectKey("r1", "image/jpeg")
	b := ObjectKey("r1", "image/jpeg")

	assert.True(t, strings.HasPrefix(a, "reports/r1/"))
	assert.True(t, strings.HasSuffix(a, ".jpg"))
	assert.NotEqual(t, a, b)
}
