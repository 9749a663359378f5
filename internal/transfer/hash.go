package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
)

const hashReadSize = 64 * 1024

// HashStream computes the SHA-256 digest of r as 64 lowercase hex characters.
// onRead, when set, receives the size of every successful read.
func HashStream(ctx context.Context, r io.Reader, onRead func(n int64)) (string, error) {
	h := sha256.New()
	buf := make([]byte, hashReadSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			if onRead != nil {
				onRead(int64(n))
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
