package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru"
)

// binaryCache keeps recently compiled binaries keyed by source hash, so
// resubmitting the same program skips the compile step. Evicted binaries
// are deleted from disk.
type binaryCache struct {
	dir string
	lru *lru.Cache
}

func newBinaryCache(dir string, size int) (*binaryCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	c, err := lru.NewWithEvict(size, func(key, value interface{}) {
		_ = os.Remove(value.(string))
	})
	if err != nil {
		return nil, err
	}
	return &binaryCache{dir: dir, lru: c}, nil
}

// CacheKey identifies a compilation by source content and language.
func CacheKey(source []byte, lang string) string {
	h := sha256.New()
	h.Write(source)
	h.Write([]byte{0})
	h.Write([]byte(lang))
	return hex.EncodeToString(h.Sum(nil))
}

func (b *binaryCache) get(key string) (string, bool) {
	v, ok := b.lru.Get(key)
	if !ok {
		return "", false
	}
	path := v.(string)
	if _, err := os.Stat(path); err != nil {
		b.lru.Remove(key)
		return "", false
	}
	return path, true
}

// put copies the freshly linked binary into the cache directory.
func (b *binaryCache) put(key, binPath string) (string, error) {
	dst := filepath.Join(b.dir, key)
	if err := copyFile(binPath, dst); err != nil {
		return "", err
	}
	b.lru.Add(key, dst)
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
