// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"io"
	"strconv"
	"strings"
)

// WriteRequest encodes req as a single protocol line and writes it to w,
// terminated by a line feed. Field values are validated against the
// delimiter set before any byte is written; a value that could not be read
// back as the same message is a message syntax error and nothing is sent.
func WriteRequest(w io.Writer, req Request) error {
	line, err := encodeRequest(req)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, line+"\n"); err != nil {
		return commsError("write failed while sending request", err)
	}
	return nil
}

// WriteResponse encodes resp as a single protocol line and writes it to w,
// terminated by a line feed. It is the inverse of ReadResponse: any message
// this function emits decodes back to an equal value.
func WriteResponse(w io.Writer, resp Response) error {
	line, err := encodeResponse(resp)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, line+"\n"); err != nil {
		return commsError("write failed while sending response", err)
	}
	return nil
}

func encodeRequest(req Request) (string, error) {
	lw := &lineWriter{}
	switch q := req.(type) {
	case *LoginRequest:
		if err := checkRequestKind("login request", q.Kind,
			ReqLogin, ReqVirtualLogin, ReqNewVirtualLogin, ReqStaffLogin); err != nil {
			return "", err
		}
		lw.command(q.Kind.Code())
		lw.token("user name", q.UserName)
		lw.lit(Delimiter)
		lw.token("password", q.Password)
		lw.lit(Delimiter)
		lw.facilityTrailer(q.Facility)
	case *LogoutRequest:
		if err := checkRequestKind("logout request", q.Kind,
			ReqLogout, ReqVirtualLogout); err != nil {
			return "", err
		}
		lw.command(q.Kind.Code())
		lw.userAccount(q.UserName, q.AccountName)
		lw.facilityTrailer(q.Facility)
	case *AccountRequest:
		if err := checkRequestKind("account request", q.Kind,
			ReqAccount, ReqVirtualAccount, ReqNewVirtualAccount); err != nil {
			return "", err
		}
		lw.command(q.Kind.Code())
		lw.userAccount(q.UserName, q.AccountName)
		lw.facilityTrailer(q.Facility)
	case *NotesRequest:
		lw.command(ReqNotes.Code())
		lw.userAccount(q.UserName, q.AccountName)
		if q.Facility != "" {
			lw.lit(FacilityDelimiter)
			lw.token("facility identifier", q.Facility)
			lw.lit(Delimiter)
		}
		lw.lit(OnsiteAssistDelimiter)
		lw.raw("notes", q.Notes, "")
	case *QueryRequest:
		if err := checkRequestKind("query request", q.Kind,
			ReqFacilityName, ReqUseProject, ReqUseTimer, ReqUseVirtual,
			ReqFacilityCount, ReqFacilityList, ReqSystemPassword,
			ReqNetDrive, ReqUseFullScreen); err != nil {
			return "", err
		}
		lw.command(q.Kind.Code())
		lw.facilityTrailer(q.Facility)
	default:
		return "", syntaxErrorf("no encoding for request %T", req)
	}
	return lw.result()
}

func encodeResponse(resp Response) (string, error) {
	lw := &lineWriter{}
	switch r := resp.(type) {
	case *CommandErrorResponse:
		lw.command(RespCommandError.Code())
	case *AllowedResponse:
		if err := checkResponseKind("allowed response", r.Kind,
			RespLogoutAllowed, RespVirtualLogoutAllowed, RespNotesAllowed,
			RespStaffLoginAllowed); err != nil {
			return "", err
		}
		lw.command(r.Kind.Code())
	case *RefusedResponse:
		if err := checkResponseKind("refused response", r.Kind,
			RespLoginRefused, RespVirtualLoginRefused, RespNewVirtualLoginRefused,
			RespLogoutRefused, RespVirtualLogoutRefused,
			RespAccountRefused, RespVirtualAccountRefused,
			RespNewVirtualAccountRefused, RespNotesRefused,
			RespFacilityRefused, RespStaffLoginRefused); err != nil {
			return "", err
		}
		lw.command(r.Kind.Code())
	case *LoginResponse:
		if err := encodeLoginResponse(lw, r); err != nil {
			return "", err
		}
	case *AccountResponse:
		if err := checkResponseKind("account response", r.Kind,
			RespAccountAllowed, RespVirtualAccountAllowed,
			RespNewVirtualAccountAllowed); err != nil {
			return "", err
		}
		lw.command(r.Kind.Code())
		lw.lit(TimeDelimiter)
		lw.raw("logout timestamp", r.Timestamp, Delimiter)
	case *FacilityNameResponse:
		lw.command(RespFacilityAllowed.Code())
		lw.lit(FacilityDelimiter)
		lw.token("facility name", r.Facility)
	case *FacilityCountResponse:
		if r.Count < 0 {
			return "", syntaxErrorf("negative facility count %d", r.Count)
		}
		lw.command(RespFacilityCount.Code())
		lw.lit(FacilityDelimiter)
		lw.lit(strconv.Itoa(r.Count))
	case *FacilityListResponse:
		lw.command(RespFacilityList.Code())
		lw.lit(AccountSeparator)
		for _, name := range r.List {
			lw.token("facility name", name)
			lw.lit(AccountSeparator)
		}
		lw.lit(Delimiter)
	case *YesNoResponse:
		if err := encodeYesNoResponse(lw, r); err != nil {
			return "", err
		}
	case *SystemPasswordResponse:
		if err := encodeSystemPasswordResponse(lw, r); err != nil {
			return "", err
		}
	case *NetDriveResponse:
		if err := encodeNetDriveResponse(lw, r); err != nil {
			return "", err
		}
	default:
		return "", syntaxErrorf("no encoding for response %T", resp)
	}
	return lw.result()
}

func encodeLoginResponse(lw *lineWriter, r *LoginResponse) error {
	if err := checkResponseKind("login response", r.Kind,
		RespLoginAllowed, RespVirtualLoginAllowed, RespNewVirtualLoginAllowed); err != nil {
		return err
	}
	lw.command(r.Kind.Code())
	lw.token("user name", r.UserName)
	lw.lit(Delimiter)
	lw.token("organisation name", r.OrgName)
	lw.lit(Delimiter)
	if r.Timestamp != "" {
		lw.lit(TimeDelimiter)
		lw.raw("login timestamp", r.Timestamp, Delimiter)
		lw.lit(Delimiter)
	}
	lw.lit(AccountDelimiter)
	for _, name := range r.Accounts {
		lw.token("account name", name)
		lw.lit(AccountSeparator)
	}
	lw.lit(Delimiter)
	lw.lit(CertificateDelimiter)
	tok, err := certificationToken(r.Certification)
	if err != nil {
		return err
	}
	lw.lit(tok)
	if r.OnsiteAssist {
		lw.lit(OnsiteAssistDelimiter)
		lw.lit(YesToken)
	} else {
		lw.lit(Delimiter)
	}
	return nil
}

func encodeYesNoResponse(lw *lineWriter, r *YesNoResponse) error {
	if r.Kind == RespUseVirtual {
		lw.command(r.Kind.Code())
		lw.lit(FacilityDelimiter)
		if r.Value {
			lw.lit(VMFLToken)
		} else {
			lw.lit(NoToken)
		}
		return nil
	}
	if err := checkResponseKind("yes/no response", r.Kind,
		RespProjectYes, RespProjectNo, RespTimerYes, RespTimerNo,
		RespFullScreenYes, RespFullScreenNo); err != nil {
		return err
	}
	if want := yesNoValue(r.Kind); r.Value != want {
		return syntaxErrorf("yes/no value %t contradicts response type %s", r.Value, r.Kind)
	}
	lw.command(r.Kind.Code())
	return nil
}

// yesNoValue reports the truth value a fixed yes/no response type stands for.
func yesNoValue(t ResponseType) bool {
	switch t {
	case RespProjectYes, RespTimerYes, RespFullScreenYes:
		return true
	default:
		return false
	}
}

func encodeSystemPasswordResponse(lw *lineWriter, r *SystemPasswordResponse) error {
	if err := checkResponseKind("system password response", r.Kind,
		RespSystemPasswordYes, RespSystemPasswordNo); err != nil {
		return err
	}
	lw.command(r.Kind.Code())
	if r.Kind == RespSystemPasswordNo {
		if r.Password != "" {
			return syntaxErrorf("system password must be empty when none is granted")
		}
		return nil
	}
	lw.lit(SystemPasswordDelimiter)
	if r.Password == "" {
		lw.lit(Delimiter)
	} else {
		lw.token("system password", r.Password)
	}
	return nil
}

func encodeNetDriveResponse(lw *lineWriter, r *NetDriveResponse) error {
	if err := checkResponseKind("net drive response", r.Kind,
		RespNetDriveYes, RespNetDriveNo); err != nil {
		return err
	}
	lw.command(r.Kind.Code())
	if r.Kind == RespNetDriveNo {
		if r.Drive != "" || r.Folder != "" || r.AccessName != "" || r.AccessPassword != "" {
			return syntaxErrorf("net drive details must be empty when no drive is granted")
		}
		return nil
	}
	lw.raw("drive name", r.Drive, AccountDelimiter)
	lw.lit(AccountDelimiter)
	lw.raw("folder name", r.Folder, TimeDelimiter)
	lw.lit(TimeDelimiter)
	lw.raw("access name", r.AccessName, OnsiteAssistDelimiter)
	lw.lit(OnsiteAssistDelimiter)
	lw.raw("access password", r.AccessPassword, Delimiter)
	return nil
}

func certificationToken(c Certification) (string, error) {
	tok, ok := certificationTokens[c]
	if !ok {
		return "", syntaxErrorf("unknown user certification %d", int(c))
	}
	return tok, nil
}

func checkRequestKind(what string, t RequestType, allowed ...RequestType) error {
	for _, a := range allowed {
		if t == a {
			return nil
		}
	}
	return syntaxErrorf("%s cannot carry type %s", what, t)
}

func checkResponseKind(what string, t ResponseType, allowed ...ResponseType) error {
	for _, a := range allowed {
		if t == a {
			return nil
		}
	}
	return syntaxErrorf("%s cannot carry type %s", what, t)
}

// lineWriter assembles one protocol line, validating every field against the
// delimiter set as it goes. The first validation failure sticks and poisons
// the result; nothing is emitted for a poisoned line.
type lineWriter struct {
	b   strings.Builder
	err error
}

// command appends the numeric command token and its ":" delimiter.
func (lw *lineWriter) command(code int) {
	lw.b.WriteString(strconv.Itoa(code))
	lw.b.WriteString(CommandDelimiter)
}

// lit appends a delimiter or fixed protocol token verbatim.
func (lw *lineWriter) lit(s string) {
	if lw.err != nil {
		return
	}
	lw.b.WriteString(s)
}

// token appends a field that the tokenizer must read back as a single
// token: it is rejected if empty or if it contains a delimiter byte or a
// line break.
func (lw *lineWriter) token(what, v string) {
	if lw.err != nil {
		return
	}
	if v == "" {
		lw.err = syntaxErrorf("%s must not be empty", what)
		return
	}
	if strings.ContainsAny(v, delimiters+"\r\n") {
		lw.err = syntaxErrorf("%s contains a reserved delimiter: %q", what, v)
		return
	}
	lw.b.WriteString(v)
}

// raw appends a free-form field that is read back up to a stop delimiter.
// Only the stop delimiters and line breaks are forbidden; the field may be
// empty and may contain any other delimiter byte.
func (lw *lineWriter) raw(what, v, stop string) {
	if lw.err != nil {
		return
	}
	if strings.ContainsAny(v, stop+"\r\n") {
		lw.err = syntaxErrorf("%s contains a reserved delimiter: %q", what, v)
		return
	}
	lw.b.WriteString(v)
}

// userAccount appends the shared "user|account|" field pair.
func (lw *lineWriter) userAccount(userName, accountName string) {
	lw.token("user name", userName)
	lw.lit(Delimiter)
	lw.token("account name", accountName)
	lw.lit(Delimiter)
}

// facilityTrailer appends the optional terminal "?facility|" sequence. An
// empty facility means the trailer is omitted entirely.
func (lw *lineWriter) facilityTrailer(facility string) {
	if facility == "" {
		return
	}
	lw.lit(FacilityDelimiter)
	lw.token("facility identifier", facility)
	lw.lit(Delimiter)
}

func (lw *lineWriter) result() (string, error) {
	if lw.err != nil {
		return "", lw.err
	}
	return lw.b.String(), nil
}
