package core

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeUpload reads an uploaded document as UTF-8 text. A leading BOM is
// dropped and invalid byte sequences become U+FFFD. Reading more than maxBytes
// (when positive) fails with a "file too large" error.
func DecodeUpload(r io.Reader, maxBytes int64) (string, error) {
	if maxBytes > 0 {
		r = io.LimitReader(r, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return "", fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, maxBytes)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	return strings.ToValidUTF8(string(data), "\uFFFD"), nil
}
