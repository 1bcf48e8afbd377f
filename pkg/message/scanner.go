// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

package message

import "strings"

// lineScanner tokenizes one line of an ACLS message. Each structural
// delimiter byte is returned as its own token; any maximal run of other
// bytes is returned as one field token. The scanner also supports raw reads
// up to a stop byte for the few fields whose values may legitimately contain
// delimiter bytes (timestamps, net-drive fields, notes).
type lineScanner struct {
	line string
	pos  int
}

func newLineScanner(line string) *lineScanner {
	return &lineScanner{line: line}
}

// hasNext reports whether any input remains.
func (s *lineScanner) hasNext() bool {
	return s.pos < len(s.line)
}

// next returns the next token. Running out of input mid-message is a syntax
// error.
func (s *lineScanner) next() (string, error) {
	if !s.hasNext() {
		return "", syntaxErrorf("unexpected end of message")
	}
	if isDelimiter(s.line[s.pos]) {
		tok := s.line[s.pos : s.pos+1]
		s.pos++
		return tok, nil
	}
	start := s.pos
	for s.pos < len(s.line) && !isDelimiter(s.line[s.pos]) {
		s.pos++
	}
	return s.line[start:s.pos], nil
}

// expect consumes the next token and requires it to equal the given
// delimiter.
func (s *lineScanner) expect(delim string) error {
	tok, err := s.next()
	if err != nil {
		return err
	}
	return expectToken(tok, delim)
}

// expectToken requires an already-consumed token to equal the given
// delimiter.
func expectToken(tok, delim string) error {
	if tok != delim {
		return syntaxErrorf("expected %q but got %q", delim, tok)
	}
	return nil
}

// expectEnd requires the line to be exhausted.
func (s *lineScanner) expectEnd() error {
	if s.hasNext() {
		return syntaxErrorf("expected end of message but got %q", s.line[s.pos:])
	}
	return nil
}

// field consumes the next token and requires it to be a field value rather
// than a structural delimiter. what names the expectation for the error.
func (s *lineScanner) field(what string) (string, error) {
	tok, err := s.next()
	if err != nil {
		return "", err
	}
	if isDelimiterToken(tok) {
		return "", syntaxErrorf("expected %s but got %q", what, tok)
	}
	return tok, nil
}

// takeUntil consumes and returns everything up to (not including) the first
// occurrence of the stop delimiter, or to end of line. Used for fields that
// may contain other delimiter bytes.
func (s *lineScanner) takeUntil(stop string) string {
	i := strings.Index(s.line[s.pos:], stop)
	if i < 0 {
		rest := s.line[s.pos:]
		s.pos = len(s.line)
		return rest
	}
	v := s.line[s.pos : s.pos+i]
	s.pos += i
	return v
}

// rest consumes and returns the remainder of the line.
func (s *lineScanner) rest() string {
	v := s.line[s.pos:]
	s.pos = len(s.line)
	return v
}
