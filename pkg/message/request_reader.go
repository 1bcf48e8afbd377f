// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// ReadRequest reads one line from br and decodes it as a client request. A
// clean close before any byte arrived is io.EOF, so a session loop can tell
// a departed client from a fault; a timeout with nothing read is a
// no-response fault and other transport failures are communications faults.
func ReadRequest(br *bufio.Reader) (Request, error) {
	line, err := readLine(br)
	if err != nil {
		if line == "" && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if line == "" && isTimeout(err) {
			return nil, noResponseError("timeout awaiting request", err)
		}
		return nil, commsError("read failed while reading request", err)
	}
	return decodeRequestLine(line)
}

func decodeRequestLine(line string) (Request, error) {
	if strings.TrimSpace(line) == "" {
		return nil, noResponseError("empty request message", nil)
	}
	s := newLineScanner(line)
	command, err := s.next()
	if err != nil {
		return nil, err
	}
	if err := s.expect(CommandDelimiter); err != nil {
		return nil, err
	}
	t, err := ParseRequestType(command)
	if err != nil {
		return nil, err
	}
	switch t {
	case ReqLogin, ReqVirtualLogin, ReqNewVirtualLogin, ReqStaffLogin:
		return readLoginRequest(s, t)
	case ReqLogout, ReqVirtualLogout:
		return readLogoutRequest(s, t)
	case ReqAccount, ReqVirtualAccount, ReqNewVirtualAccount:
		return readAccountRequest(s, t)
	case ReqNotes:
		return readNotesRequest(s)
	case ReqFacilityName, ReqUseProject, ReqUseTimer, ReqUseVirtual,
		ReqFacilityCount, ReqFacilityList, ReqSystemPassword,
		ReqNetDrive, ReqUseFullScreen:
		return readQueryRequest(s, t)
	default:
		return nil, syntaxErrorf("no field parser for request type %s", t)
	}
}

func readLoginRequest(s *lineScanner, t RequestType) (Request, error) {
	userName, err := s.field("a user name")
	if err != nil {
		return nil, err
	}
	if err := s.expect(Delimiter); err != nil {
		return nil, err
	}
	password, err := s.field("a password")
	if err != nil {
		return nil, err
	}
	if err := s.expect(Delimiter); err != nil {
		return nil, err
	}
	facility, err := readFacilityTrailer(s)
	if err != nil {
		return nil, err
	}
	return &LoginRequest{Kind: t, UserName: userName, Password: password, Facility: facility}, nil
}

func readLogoutRequest(s *lineScanner, t RequestType) (Request, error) {
	userName, accountName, facility, err := readUserAccount(s)
	if err != nil {
		return nil, err
	}
	return &LogoutRequest{Kind: t, UserName: userName, AccountName: accountName, Facility: facility}, nil
}

func readAccountRequest(s *lineScanner, t RequestType) (Request, error) {
	userName, accountName, facility, err := readUserAccount(s)
	if err != nil {
		return nil, err
	}
	return &AccountRequest{Kind: t, UserName: userName, AccountName: accountName, Facility: facility}, nil
}

// readUserAccount reads the shared "user|account|" prefix and the optional
// facility trailer of the logout and account request kinds.
func readUserAccount(s *lineScanner) (string, string, string, error) {
	userName, err := s.field("a user name")
	if err != nil {
		return "", "", "", err
	}
	if err := s.expect(Delimiter); err != nil {
		return "", "", "", err
	}
	accountName, err := s.field("an account name")
	if err != nil {
		return "", "", "", err
	}
	if err := s.expect(Delimiter); err != nil {
		return "", "", "", err
	}
	facility, err := readFacilityTrailer(s)
	if err != nil {
		return "", "", "", err
	}
	return userName, accountName, facility, nil
}

func readNotesRequest(s *lineScanner) (Request, error) {
	userName, err := s.field("a user name")
	if err != nil {
		return nil, err
	}
	if err := s.expect(Delimiter); err != nil {
		return nil, err
	}
	accountName, err := s.field("an account name")
	if err != nil {
		return nil, err
	}
	if err := s.expect(Delimiter); err != nil {
		return nil, err
	}
	tok, err := s.next()
	if err != nil {
		return nil, err
	}
	var facility string
	if tok == FacilityDelimiter {
		if facility, err = s.field("a facility identifier"); err != nil {
			return nil, err
		}
		if err := s.expect(Delimiter); err != nil {
			return nil, err
		}
		if tok, err = s.next(); err != nil {
			return nil, err
		}
	}
	if err := expectToken(tok, OnsiteAssistDelimiter); err != nil {
		return nil, err
	}
	return &NotesRequest{
		UserName:    userName,
		AccountName: accountName,
		Facility:    facility,
		Notes:       s.rest(),
	}, nil
}

func readQueryRequest(s *lineScanner, t RequestType) (Request, error) {
	facility, err := readFacilityTrailer(s)
	if err != nil {
		return nil, err
	}
	return &QueryRequest{Kind: t, Facility: facility}, nil
}

// readFacilityTrailer reads the optional terminal "?facility|" sequence.
// Absence of the introducer means no facility; anything else before end of
// message is a syntax error.
func readFacilityTrailer(s *lineScanner) (string, error) {
	if !s.hasNext() {
		return "", nil
	}
	if err := s.expect(FacilityDelimiter); err != nil {
		return "", err
	}
	facility, err := s.field("a facility identifier")
	if err != nil {
		return "", err
	}
	if err := s.expect(Delimiter); err != nil {
		return "", err
	}
	if err := s.expectEnd(); err != nil {
		return "", err
	}
	return facility, nil
}
