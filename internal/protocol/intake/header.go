// Package intake implements the application-level framing of the file
// intake wire protocol.
//
// A transfer is a single byte stream of the form [header][payload]. The
// header is the XDR encoding of one string, the destination path: a 4-byte
// big-endian length N, N path bytes, then zero padding up to a 4-byte
// boundary. Everything after the header is written verbatim as file
// content. The header is self-delimiting, so the payload boundary is
// computable from the header alone.
package intake

import (
	"bytes"
	"errors"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// ErrMalformedHeader reports a buffer too short to hold a header or a
// header that does not decode into a usable destination path. It is a
// per-connection condition: materialization is skipped and the connection
// is closed normally.
var ErrMalformedHeader = errors.New("malformed transfer header")

// FileHeader is the decoded application-level header of one transfer.
type FileHeader struct {
	// DstPath is the destination filesystem path for the payload. May be
	// relative or absolute; missing parent directories are created at
	// materialization time.
	DstPath string
}

// minHeaderLen is the length field alone; anything shorter cannot be a
// header at all.
const minHeaderLen = 4

// DecodeHeader parses the structured prefix of buf.
//
// Returns the header and the number of bytes it occupied; the payload is
// buf[headerLen:]. Fails with ErrMalformedHeader (possibly wrapped with
// detail) when buf cannot be parsed.
func DecodeHeader(buf []byte) (*FileHeader, int, error) {
	if len(buf) < minHeaderLen {
		return nil, 0, fmt.Errorf("%w: %d bytes, need at least %d",
			ErrMalformedHeader, len(buf), minHeaderLen)
	}

	header := &FileHeader{}
	headerLen, err := xdr.Unmarshal(bytes.NewReader(buf), header)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	if header.DstPath == "" {
		return nil, 0, fmt.Errorf("%w: empty destination path", ErrMalformedHeader)
	}

	return header, headerLen, nil
}

// EncodeHeader builds the wire header for a destination path. Used by the
// sending half of the pipeline and by tests.
func EncodeHeader(dstPath string) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &FileHeader{DstPath: dstPath}); err != nil {
		return nil, fmt.Errorf("marshal transfer header: %w", err)
	}
	return buf.Bytes(), nil
}
