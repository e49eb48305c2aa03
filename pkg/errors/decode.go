package errors

import (
	"unicode/utf8"

	"github.com/gear6io/ferret/pkg/proto"
)

// DecodeServerError decodes the payload of a server ERR packet into an
// Error. The payload starts at the error code; the 0xFF marker byte has
// already been consumed by the framing layer.
//
// Decoding is total: any structural failure inside the payload yields the
// decoding variant rather than a raw parse error, so callers always receive
// a valid Error. Origin context is captured at this call regardless of
// which variant results.
func DecodeServerError(payload []byte) *Error {
	return newAt(decodeProblem(payload), 3)
}

func decodeProblem(payload []byte) Problem {
	buf := proto.NewBuffer(payload)

	code, err := buf.ReadUint16()
	if err != nil {
		return DecodingError{}
	}

	// 0xFFFF signals an error without structured detail: no SQL state,
	// no message, regardless of any trailing bytes.
	if code == proto.NoDetailCode {
		return InvalidQuery{Code: code}
	}

	// An exhausted payload here means no SQL state and no message.
	if marker, ok := buf.PeekByte(); ok && marker == proto.SQLStateMarker {
		// Skip the marker and the 5-byte SQL state without decoding it;
		// this component never surfaces the state code. A truncated state
		// block is a malformed payload.
		if err := buf.Skip(6); err != nil {
			return DecodingError{}
		}
	}

	message := buf.Rest()
	if !utf8.Valid(message) {
		return DecodingError{}
	}

	return InvalidQuery{Code: code, Message: string(message)}
}
