// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

// Package message implements the ACLS wire protocol: reading and writing the
// line-oriented messages exchanged between facility clients and an ACLS
// server.
//
// # Wire Format
//
// Every message is a single text line. It starts with a numeric command code
// and a ":" delimiter, followed by fields separated by single-byte
// delimiters:
//
//	|  field delimiter
//	]  account list introducer
//	;  account and subfacility separator
//	[  timestamp introducer
//	&  certificate introducer
//	~  onsite-assist and notes introducer
//	?  facility introducer
//	/  system password introducer
//
// Delimiters are structural: each one is its own token, and a field runs to
// the next delimiter byte. Whitespace is ordinary field content, so names
// with spaces pass through untouched. A typical exchange:
//
//	client: 1:alice|secret|?LabX|
//	server: 11:alice|CMM|]acct1;acct2;|&Valid|
//
// # Reading
//
// ReadRequest, ReadResponse and ReadResponseWithStatusLine each consume one
// line from a bufio.Reader and return the decoded message. The caller owns
// the reader, so a session can interleave reads with its own deadline
// handling, and the status-line variant can consume the preliminary
// "IP Accepted" line some server deployments send before the response
// proper.
//
// Decoding is strict: an unknown command code, a missing delimiter or
// trailing garbage is a message syntax fault, never a zero value. The two
// deliberate exceptions mirror what production servers actually do: a
// facility list is not checked for end of record because the server holds
// the connection open after sending one, and the refusing variants of the
// system password and net drive responses carry no payload at all.
//
// # Writing
//
// WriteRequest and WriteResponse are the inverse operations. Every field is
// validated against the delimiter set before anything is written, so a value
// that could not be read back unchanged is rejected as a syntax fault and no
// partial line reaches the wire. For any message this package emits,
// decoding yields an equal value.
//
// # Faults
//
// All failures are *Error values classified by Kind:
//
//   - KindCommunications: the transport failed mid-message
//   - KindProtocol: the peer broke the framing rules
//   - KindMessageSyntax: a line arrived but could not be decoded
//   - KindNoResponse: the peer went silent or sent nothing
//   - KindServerStatus: the server rejected us at the status line
//
// Callers branch on KindOf(err); the rejected status line, when there is
// one, is recoverable through StatusLineOf.
package message
