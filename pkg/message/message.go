// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

package message

import "strings"

// Structural delimiters of the ACLS line grammar. The decoder and the encoder
// share these constants so the two sides never drift. Every delimiter is a
// single byte and is always tokenized as a standalone token; any maximal run
// of other bytes is one field token. Whitespace is not a delimiter, so field
// values may contain spaces.
const (
	// CommandDelimiter separates the leading command token from the fields.
	CommandDelimiter = ":"

	// Delimiter is the generic field / end-of-record delimiter.
	Delimiter = "|"

	// AccountDelimiter introduces the account list of a login response.
	AccountDelimiter = "]"

	// AccountSeparator separates repeated list entries (accounts,
	// subfacilities).
	AccountSeparator = ";"

	// TimeDelimiter introduces a timestamp field.
	TimeDelimiter = "["

	// CertificateDelimiter introduces the certification token of a login
	// response.
	CertificateDelimiter = "&"

	// OnsiteAssistDelimiter introduces the optional onsite-assist flag of a
	// login response and the free-text field of a notes request.
	OnsiteAssistDelimiter = "~"

	// FacilityDelimiter introduces a facility name, count or type field.
	FacilityDelimiter = "?"

	// SystemPasswordDelimiter introduces the system password field.
	SystemPasswordDelimiter = "/"
)

// Fixed word tokens of the grammar.
const (
	// AcceptedIPTag is the full status line the server sends when it accepts
	// the caller's network address.
	AcceptedIPTag = "IP Accepted"

	// YesToken and NoToken are the boolean word tokens.
	YesToken = "Yes"
	NoToken  = "No"

	// VMFLToken marks a virtual (multiplexed) facility in a use-virtual
	// response.
	VMFLToken = "vMFL"
)

// delimiters is the set of bytes tokenized as standalone tokens.
const delimiters = CommandDelimiter + Delimiter + AccountDelimiter +
	AccountSeparator + TimeDelimiter + CertificateDelimiter +
	OnsiteAssistDelimiter + FacilityDelimiter + SystemPasswordDelimiter

// isDelimiter reports whether b is a structural delimiter byte.
func isDelimiter(b byte) bool {
	return strings.IndexByte(delimiters, b) >= 0
}

// isDelimiterToken reports whether tok is a single structural delimiter.
func isDelimiterToken(tok string) bool {
	return len(tok) == 1 && isDelimiter(tok[0])
}

// Request is a client-to-server message. The set of implementations in this
// package is closed; the type tag drives all dispatch.
type Request interface {
	Type() RequestType
}

// Response is a server-to-client message. The set of implementations in this
// package is closed; the type tag drives all dispatch.
type Response interface {
	Type() ResponseType
}
