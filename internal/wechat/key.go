// Package wechat implements the encrypted-messenger extraction engine:
// per-file key derivation and page-encrypted SQLite opening (C2), row
// decoding (C3), media path resolution (C4), and the extraction
// orchestrator (C5).
//
// Grounded in original_source/src/knowledge_harvester/adapters/wechat.py,
// the sole full reference implementation in the retrieved pack for this
// side of the spec. The teacher (rekal-dev-rekal-cli) contributes the
// os/exec subprocess idiom (see init.go's git plumbing) that this package
// reuses to drive the standalone sqlcipher CLI binary rather than a CGO
// SQLite driver.
package wechat

import (
	"crypto/sha512"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"github.com/harvester-dev/harvester/internal/harvestererr"
)

// KeyRounds is the PBKDF2 iteration count (spec §4.1).
const KeyRounds = 256000

// KeyLen is the derived raw-key length in bytes.
const KeyLen = 32

// SaltLen is the number of leading file bytes used as the PBKDF2 salt.
const SaltLen = 16

// DeriveKey reads the first SaltLen bytes of dbPath as salt and derives the
// 32-byte raw page key via PBKDF2-HMAC-SHA512(master, salt, 256000, 32).
// Deterministic: the same (master, dbPath) pair always yields the same key.
func DeriveKey(master []byte, dbPath string) ([]byte, error) {
	f, err := os.Open(dbPath)
	if err != nil {
		return nil, harvestererr.New(harvestererr.IoError, dbPath, err)
	}
	defer f.Close()

	salt := make([]byte, SaltLen)
	n, err := io.ReadFull(f, salt)
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, harvestererr.New(harvestererr.ShortFile, dbPath,
				fmt.Errorf("file is %d bytes, need at least %d for salt", n, SaltLen))
		}
		return nil, harvestererr.New(harvestererr.IoError, dbPath, err)
	}

	return deriveRawKey(master, salt), nil
}

// deriveRawKey is the pure derivation function, split out so it can be unit
// tested against a fixed salt without touching the filesystem.
func deriveRawKey(master, salt []byte) []byte {
	return pbkdf2.Key(master, salt, KeyRounds, KeyLen, newSHA512Hash)
}

// newSHA512Hash exists only to give pbkdf2.Key a zero-arg hash.Hash
// constructor; kept separate so deriveRawKey's call site reads like the spec's
// "PBKDF2-HMAC-SHA512" without an inline closure.
var newSHA512Hash = sha512.New
