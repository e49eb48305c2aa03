package errors

import (
	"fmt"

	"github.com/gear6io/ferret/pkg/proto"
)

// Problem is the closed set of failure kinds this client can produce.
// The set is sealed: every failure path must name one of the variants
// below, there is no generic catch-all. A new failure mode requires a new
// variant so that the compiler surfaces every site that must handle it.
type Problem interface {
	// Identifier returns the stable machine-readable key for the variant.
	// It depends only on the variant, never on its payload; callers branch
	// on it instead of on rendered text.
	Identifier() string

	reason() string
	sealed()
}

// InvalidTypeBound reports that a bound parameter's runtime type did not
// match the column's declared type.
type InvalidTypeBound struct {
	Got      proto.FieldType
	Expected proto.FieldType
}

// InvalidQuery reports a protocol error packet returned by the server.
type InvalidQuery struct {
	Code    uint16
	Message string
}

// InvalidPacket reports a received packet that failed structural validation.
type InvalidPacket struct{}

// InvalidHandshake reports a malformed initial handshake packet.
type InvalidHandshake struct{}

// InvalidResponse reports a response packet that did not parse into any
// expected shape.
type InvalidResponse struct{}

// Unsupported reports a requested feature this client does not implement.
type Unsupported struct{}

// ParsingError reports a binary field that failed to parse.
type ParsingError struct{}

// DecodingError reports a payload that could not be decoded into the
// requested structured type.
type DecodingError struct{}

// ConnectionInUse reports attempted concurrent use of a single connection.
type ConnectionInUse struct{}

// InvalidCredentials reports rejected authentication.
type InvalidCredentials struct{}

// TooManyParametersBound reports more bound parameters than the query
// declares placeholders for.
type TooManyParametersBound struct{}

func (InvalidTypeBound) Identifier() string       { return "invalidTypeBound" }
func (InvalidQuery) Identifier() string           { return "invalidQuery" }
func (InvalidPacket) Identifier() string          { return "invalidPacket" }
func (InvalidHandshake) Identifier() string       { return "invalidHandshake" }
func (InvalidResponse) Identifier() string        { return "invalidResponse" }
func (Unsupported) Identifier() string            { return "unsupported" }
func (ParsingError) Identifier() string           { return "parsingError" }
func (DecodingError) Identifier() string          { return "decodingError" }
func (ConnectionInUse) Identifier() string        { return "connectionInUse" }
func (InvalidCredentials) Identifier() string     { return "invalidCredentials" }
func (TooManyParametersBound) Identifier() string { return "tooManyParametersBound" }

// The reason strings below are version-pinned; log scrapers match on them.

func (p InvalidTypeBound) reason() string {
	return fmt.Sprintf("a field of type %s was bound where %s was required", p.Got, p.Expected)
}

func (p InvalidQuery) reason() string {
	return fmt.Sprintf("server returned error %d: %s", p.Code, p.Message)
}

func (InvalidPacket) reason() string {
	return "a received packet failed structural validation"
}

func (InvalidHandshake) reason() string {
	return "the server handshake packet was malformed"
}

func (InvalidResponse) reason() string {
	return "the server response did not match any expected packet shape"
}

func (Unsupported) reason() string {
	return "the requested feature is not supported by this client"
}

func (ParsingError) reason() string {
	return "a binary protocol field could not be parsed"
}

func (DecodingError) reason() string {
	return "the packet payload could not be decoded"
}

func (ConnectionInUse) reason() string {
	return "the connection is already in use"
}

func (InvalidCredentials) reason() string {
	return "the server rejected the supplied credentials"
}

func (TooManyParametersBound) reason() string {
	return "more parameters were bound than the query declares placeholders for"
}

func (InvalidTypeBound) sealed()       {}
func (InvalidQuery) sealed()           {}
func (InvalidPacket) sealed()          {}
func (InvalidHandshake) sealed()       {}
func (InvalidResponse) sealed()        {}
func (Unsupported) sealed()            {}
func (ParsingError) sealed()           {}
func (DecodingError) sealed()          {}
func (ConnectionInUse) sealed()        {}
func (InvalidCredentials) sealed()     {}
func (TooManyParametersBound) sealed() {}
