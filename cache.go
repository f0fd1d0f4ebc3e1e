package main

import (
	"github.com/alexaandru/utils"
)

// uploadCache remembers the md5 of the last successful upload per key, so that an
// unchanged file is not sent again.
type uploadCache struct {
	fname  string
	hashes utils.FileHashes
}

// loadUploadCache reads the cache file. A missing or unreadable file starts an empty cache.
func loadUploadCache(fname string) *uploadCache {
	hashes := utils.FileHashes{}
	hashes.Load(fname)

	return &uploadCache{fname: fname, hashes: hashes}
}

// unchanged tells whether key was last uploaded with the same md5.
func (c *uploadCache) unchanged(key, md5sum string) bool {
	current := utils.FileHashes{key: md5sum}

	return len(current.Diff(c.hashes)) == 0
}

// record stores md5sum for key and writes the cache file.
func (c *uploadCache) record(key, md5sum string) error {
	c.hashes[key] = md5sum

	return c.hashes.Dump(c.fname)
}
