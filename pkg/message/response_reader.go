// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
)

// ReadResponse reads one line from br and decodes it as a server response.
// Transport failures are communications faults, except a timeout or silent
// close before any byte arrived, which is a no-response fault. Decoder state
// is per call; br carries the only cross-call stream position.
func ReadResponse(br *bufio.Reader) (Response, error) {
	line, err := readLine(br)
	if err != nil {
		if line == "" && isTimeout(err) {
			return nil, noResponseError("timeout awaiting response", err)
		}
		if line == "" && errors.Is(err, io.EOF) {
			return nil, noResponseError("empty response message", err)
		}
		return nil, commsError("read failed while reading response", err)
	}
	return decodeResponseLine(line)
}

// ReadResponseWithStatusLine reads a preliminary status line, which must be
// the accepted marker, then reads the response proper. A server-status fault
// carries the literal rejected line. A timeout or silent close while
// awaiting the status line is a no-response fault; once the status line has
// been accepted, any read failure is a protocol fault.
func ReadResponseWithStatusLine(br *bufio.Reader) (Response, error) {
	status, err := readLine(br)
	if err != nil {
		if status == "" && isTimeout(err) {
			return nil, noResponseError("timeout awaiting status line", err)
		}
		if status == "" && errors.Is(err, io.EOF) {
			return nil, noResponseError("no status line received", err)
		}
		return nil, commsError("read failed while reading status line", err)
	}
	if status != AcceptedIPTag {
		return nil, statusError(status)
	}
	line, err := readLine(br)
	if err != nil {
		return nil, protocolError("read failed while reading response message", err)
	}
	return decodeResponseLine(line)
}

// readLine reads one newline-terminated line, without the line break. A
// final line terminated by EOF instead of a newline is still a line. On
// error, any partial data read so far is returned alongside the error so the
// caller can tell a silent peer from a truncated message.
func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return line, nil
		}
		return line, err
	}
	return line, nil
}

// isTimeout reports whether err is a read-deadline expiry.
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func decodeResponseLine(line string) (Response, error) {
	if strings.TrimSpace(line) == "" {
		return nil, noResponseError("empty response message", nil)
	}
	s := newLineScanner(line)
	command, err := s.next()
	if err != nil {
		return nil, err
	}
	if err := s.expect(CommandDelimiter); err != nil {
		return nil, err
	}
	t, err := ParseResponseType(command)
	if err != nil {
		return nil, err
	}
	switch t {
	case RespCommandError:
		return readBareResponse(s, &CommandErrorResponse{})
	case RespLoginAllowed, RespVirtualLoginAllowed, RespNewVirtualLoginAllowed:
		return readLoginResponse(s, t)
	case RespAccountAllowed, RespVirtualAccountAllowed, RespNewVirtualAccountAllowed:
		return readAccountResponse(s, t)
	case RespLoginRefused, RespVirtualLoginRefused, RespNewVirtualLoginRefused,
		RespLogoutRefused, RespVirtualLogoutRefused,
		RespAccountRefused, RespVirtualAccountRefused, RespNewVirtualAccountRefused,
		RespNotesRefused, RespFacilityRefused, RespStaffLoginRefused:
		return readBareResponse(s, &RefusedResponse{Kind: t})
	case RespFacilityAllowed:
		return readFacilityName(s)
	case RespLogoutAllowed, RespVirtualLogoutAllowed, RespNotesAllowed, RespStaffLoginAllowed:
		return readBareResponse(s, &AllowedResponse{Kind: t})
	case RespProjectYes, RespTimerYes, RespFullScreenYes:
		return readBareResponse(s, &YesNoResponse{Kind: t, Value: true})
	case RespProjectNo, RespTimerNo, RespFullScreenNo:
		return readBareResponse(s, &YesNoResponse{Kind: t, Value: false})
	case RespUseVirtual:
		return readUseVirtual(s)
	case RespFacilityCount:
		return readFacilityCount(s)
	case RespFacilityList:
		return readFacilityList(s)
	case RespSystemPasswordYes, RespSystemPasswordNo:
		return readSystemPassword(s, t)
	case RespNetDriveYes, RespNetDriveNo:
		return readNetDrive(s, t)
	default:
		return nil, syntaxErrorf("no field parser for response type %s", t)
	}
}

// readBareResponse finishes the payload-less response kinds: the message
// must end right after the command delimiter.
func readBareResponse(s *lineScanner, r Response) (Response, error) {
	if err := s.expectEnd(); err != nil {
		return nil, err
	}
	return r, nil
}

func readLoginResponse(s *lineScanner, t ResponseType) (Response, error) {
	userName, err := s.field("a user name")
	if err != nil {
		return nil, err
	}
	if err := s.expect(Delimiter); err != nil {
		return nil, err
	}
	orgName, err := s.field("an organization name")
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
	var timestamp string
	if tok == TimeDelimiter {
		timestamp = s.takeUntil(Delimiter)
		if err := s.expect(Delimiter); err != nil {
			return nil, err
		}
		if tok, err = s.next(); err != nil {
			return nil, err
		}
	}
	if err := expectToken(tok, AccountDelimiter); err != nil {
		return nil, err
	}
	var accounts []string
	if tok, err = s.next(); err != nil {
		return nil, err
	}
	for tok != Delimiter {
		accounts = append(accounts, tok)
		if err := s.expect(AccountSeparator); err != nil {
			return nil, err
		}
		if tok, err = s.next(); err != nil {
			return nil, err
		}
	}
	if err := s.expect(CertificateDelimiter); err != nil {
		return nil, err
	}
	certTok, err := s.next()
	if err != nil {
		return nil, err
	}
	cert, err := ParseCertification(certTok)
	if err != nil {
		return nil, err
	}
	// One token always follows the certification; only the onsite-assist
	// introducer changes the parse.
	if tok, err = s.next(); err != nil {
		return nil, err
	}
	var onsiteAssist bool
	if tok == OnsiteAssistDelimiter {
		yn, err := s.next()
		if err != nil {
			return nil, err
		}
		onsiteAssist = strings.EqualFold(yn, YesToken)
	}
	if err := s.expectEnd(); err != nil {
		return nil, err
	}
	return &LoginResponse{
		Kind:          t,
		UserName:      userName,
		OrgName:       orgName,
		Timestamp:     timestamp,
		Accounts:      accounts,
		Certification: cert,
		OnsiteAssist:  onsiteAssist,
	}, nil
}

func readAccountResponse(s *lineScanner, t ResponseType) (Response, error) {
	if err := s.expect(TimeDelimiter); err != nil {
		return nil, err
	}
	timestamp := s.takeUntil(Delimiter)
	if err := s.expectEnd(); err != nil {
		return nil, err
	}
	return &AccountResponse{Kind: t, Timestamp: timestamp}, nil
}

func readFacilityName(s *lineScanner) (Response, error) {
	if err := s.expect(FacilityDelimiter); err != nil {
		return nil, err
	}
	facility, err := s.field("a facility name")
	if err != nil {
		return nil, err
	}
	if err := s.expectEnd(); err != nil {
		return nil, err
	}
	return &FacilityNameResponse{Facility: facility}, nil
}

func readUseVirtual(s *lineScanner) (Response, error) {
	if err := s.expect(FacilityDelimiter); err != nil {
		return nil, err
	}
	tok, err := s.next()
	if err != nil {
		return nil, err
	}
	var value bool
	switch {
	case strings.EqualFold(tok, VMFLToken):
		value = true
	case strings.EqualFold(tok, NoToken):
		value = false
	default:
		return nil, syntaxErrorf("expected %q or %q but got %q", VMFLToken, NoToken, tok)
	}
	if err := s.expectEnd(); err != nil {
		return nil, err
	}
	return &YesNoResponse{Kind: RespUseVirtual, Value: value}, nil
}

func readFacilityCount(s *lineScanner) (Response, error) {
	if err := s.expect(FacilityDelimiter); err != nil {
		return nil, err
	}
	tok, err := s.next()
	if err != nil {
		return nil, err
	}
	count, err := strconv.Atoi(tok)
	if err != nil {
		return nil, syntaxErrorf("invalid facility count %q", tok)
	}
	if err := s.expectEnd(); err != nil {
		return nil, err
	}
	return &FacilityCountResponse{Count: count}, nil
}

func readFacilityList(s *lineScanner) (Response, error) {
	if err := s.expect(AccountSeparator); err != nil {
		return nil, err
	}
	var list []string
	tok, err := s.next()
	if err != nil {
		return nil, err
	}
	for tok != Delimiter {
		list = append(list, tok)
		if err := s.expect(AccountSeparator); err != nil {
			return nil, err
		}
		if tok, err = s.next(); err != nil {
			return nil, err
		}
	}
	// The server holds the connection open after a facility list, so there
	// is no end-of-record check here.
	return &FacilityListResponse{List: list}, nil
}

func readSystemPassword(s *lineScanner, t ResponseType) (Response, error) {
	if t == RespSystemPasswordNo {
		return &SystemPasswordResponse{Kind: t}, nil
	}
	if err := s.expect(SystemPasswordDelimiter); err != nil {
		return nil, err
	}
	password, err := s.next()
	if err != nil {
		return nil, err
	}
	// A bare field delimiter in the password slot means an empty password.
	if password == Delimiter {
		password = ""
	}
	if err := s.expectEnd(); err != nil {
		return nil, err
	}
	return &SystemPasswordResponse{Kind: t, Password: password}, nil
}

func readNetDrive(s *lineScanner, t ResponseType) (Response, error) {
	if t == RespNetDriveNo {
		return &NetDriveResponse{Kind: t}, nil
	}
	drive := s.takeUntil(AccountDelimiter)
	if err := s.expect(AccountDelimiter); err != nil {
		return nil, err
	}
	folder := s.takeUntil(TimeDelimiter)
	if err := s.expect(TimeDelimiter); err != nil {
		return nil, err
	}
	accessName := s.takeUntil(OnsiteAssistDelimiter)
	if err := s.expect(OnsiteAssistDelimiter); err != nil {
		return nil, err
	}
	accessPassword := s.takeUntil(Delimiter)
	if err := s.expectEnd(); err != nil {
		return nil, err
	}
	return &NetDriveResponse{
		Kind:           t,
		Drive:          drive,
		Folder:         folder,
		AccessName:     accessName,
		AccessPassword: accessPassword,
	}, nil
}
