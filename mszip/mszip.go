// Package mszip decodes the MSZIP framing used both inside Microsoft
// Cabinet data blocks and by KWAJ's compression type 0x04: each chunk
// begins with the two-byte signature "CK" followed by one or more raw
// DEFLATE blocks (terminated by BFINAL), with the inflater's lookback
// window carried from one chunk to the next.
package mszip

import (
	"errors"
	"io"

	"github.com/laenix/binms/deflate"
	"github.com/laenix/binms/ring"
)

var ErrMissingSignature = errors.New("mszip: missing \"CK\" chunk signature")

// DecodeBlock decodes exactly one MSZIP chunk from r (reading the "CK"
// signature and then DEFLATE blocks until BFINAL), reusing lookback if
// non-nil. It returns the decoded bytes and the window to pass to the next
// chunk.
func DecodeBlock(r io.Reader, lookback *ring.Window) ([]byte, *ring.Window, error) {
	var sig [2]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return nil, nil, err
	}
	if sig[0] != 'C' || sig[1] != 'K' {
		return nil, nil, ErrMissingSignature
	}

	inf := deflate.New(r)
	if lookback != nil {
		inf.SetLookback(lookback)
	}

	var output []byte
	for {
		final, err := inf.InflateBlock(&output)
		if err != nil {
			return nil, nil, err
		}
		if final {
			break
		}
	}
	return output, inf.Lookback(), nil
}

// DecodeStream decodes a run of back-to-back MSZIP chunks until a clean
// EOF is reached where the next chunk's signature would start, as used by
// a KWAJ type-0x04 payload.
func DecodeStream(r io.Reader) ([]byte, error) {
	var output []byte
	var lookback *ring.Window

	for {
		var sig [2]byte
		n, err := io.ReadFull(r, sig[:])
		if n == 0 && errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if sig[0] != 'C' || sig[1] != 'K' {
			return nil, ErrMissingSignature
		}

		inf := deflate.New(r)
		if lookback != nil {
			inf.SetLookback(lookback)
		}
		for {
			final, err := inf.InflateBlock(&output)
			if err != nil {
				return nil, err
			}
			if final {
				break
			}
		}
		lookback = inf.Lookback()
	}

	return output, nil
}
