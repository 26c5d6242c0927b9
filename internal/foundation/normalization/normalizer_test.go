package normalization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type driver string

const (
	driverFS driver = "fs"
	driverS3 driver = "s3"
)

func newDriverNormalizer() *Normalizer[driver] {
	return NewNormalizer(map[string]driver{"fs": driverFS, "S3": driverS3}, driverFS)
}

func TestNormalize(t *testing.T) {
	n := newDriverNormalizer()
	assert.Equal(t, driverS3, n.Normalize("  s3 "))
	assert.Equal(t, driverS3, n.Normalize("S3"))
	assert.Equal(t, driverFS, n.Normalize("gcs"))
	assert.Equal(t, driverFS, n.Normalize(""))
}

func TestParse(t *testing.T) {
	n := newDriverNormalizer()

	v, err := n.Parse("FS")
	require.NoError(t, err)
	assert.Equal(t, driverFS, v)

	v, err = n.Parse("")
	require.NoError(t, err)
	assert.Equal(t, driverFS, v)

	_, err = n.Parse("gcs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fs, s3")
}

func TestValidAndKeys(t *testing.T) {
	n := newDriverNormalizer()
	assert.True(t, n.Valid(driverS3))
	assert.False(t, n.Valid(driver("gcs")))
	assert.Equal(t, []string{"fs", "s3"}, n.Keys())
}
