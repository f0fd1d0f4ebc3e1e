package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileChecksums(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		content, md5, sha256 string
	}{
		{"", "d41d8cd98f00b204e9800998ecf8427e", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"abc", "900150983cd24fb0d6963f7d28e17f72", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"Bar Baz\n", barBazMD5, barBazSHA256},
	}

	for i, c := range cases {
		fpath := writeFile(t, dir, filepath.Base(t.Name())+string(rune('a'+i)), c.content)

		md5sum, err := fileMD5(fpath)
		require.NoError(t, err)
		assert.Equal(t, c.md5, md5sum)

		sha, err := fileSHA256(fpath)
		require.NoError(t, err)
		assert.Equal(t, c.sha256, sha)
	}
}

func TestFileChecksumsMissingFile(t *testing.T) {
	_, err := fileMD5(filepath.Join(t.TempDir(), "bogus"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = fileSHA256(filepath.Join(t.TempDir(), "bogus"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestStreamChecksums(t *testing.T) {
	sums, n, err := streamChecksums(strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, checksums{
		MD5:    "900150983cd24fb0d6963f7d28e17f72",
		SHA256: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
	}, sums)
	assert.False(t, sums.empty())

	sums, _, err = streamChecksums(iotest.ErrReader(errors.New("connection reset")))
	assert.Error(t, err)
	assert.True(t, sums.empty())
}

func TestChecksumHeader(t *testing.T) {
	val, err := checksumHeader("ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", encodingBase64)
	require.NoError(t, err)
	assert.Equal(t, "ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0=", val)

	val, err = checksumHeader(barBazSHA256, encodingHex)
	require.NoError(t, err)
	assert.Equal(t, barBazSHA256, val)

	_, err = checksumHeader("not hex", encodingBase64)
	assert.Error(t, err)
}

func TestFileChecksum(t *testing.T) {
	fpath := writeFile(t, t.TempDir(), "check.txt", "123456789")
	cases := map[string]string{
		"CRC32":     "y/Q5Jg==",
		"CRC32C":    "4waSgw==",
		"SHA1":      "98O8HYCOBHMq32eZZczDTKeuNEE=",
		"SHA256":    "FeKw08M4keuw8e9gnsQZQgwg4yDOlMZfvIwzEkSOsiU=",
		"CRC64NVME": "rosUhgp5mIg=",
	}

	for algorithm, expected := range cases {
		sum, err := fileChecksum(fpath, algorithm)
		require.NoError(t, err, algorithm)
		assert.Equal(t, expected, sum, algorithm)
	}

	_, err := fileChecksum(fpath, "MD4")
	assert.ErrorIs(t, err, errInvalidOption)

	_, err = fileChecksum(filepath.Join(t.TempDir(), "gone.txt"), "CRC32")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
