// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"bufio"
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteRequest_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "login",
			req:  &LoginRequest{Kind: ReqLogin, UserName: "alice", Password: "secret"},
		},
		{
			name: "login with facility",
			req:  &LoginRequest{Kind: ReqVirtualLogin, UserName: "bob", Password: "pw", Facility: "LabX"},
		},
		{
			name: "new virtual login",
			req:  &LoginRequest{Kind: ReqNewVirtualLogin, UserName: "carol", Password: "pw2", Facility: "Chem7"},
		},
		{
			name: "staff login",
			req:  &LoginRequest{Kind: ReqStaffLogin, UserName: "staff", Password: "override"},
		},
		{
			name: "logout",
			req:  &LogoutRequest{Kind: ReqLogout, UserName: "alice", AccountName: "AcctA"},
		},
		{
			name: "virtual logout with facility",
			req:  &LogoutRequest{Kind: ReqVirtualLogout, UserName: "bob", AccountName: "AcctB", Facility: "LabX"},
		},
		{
			name: "account",
			req:  &AccountRequest{Kind: ReqAccount, UserName: "alice", AccountName: "AcctA"},
		},
		{
			name: "virtual account",
			req:  &AccountRequest{Kind: ReqVirtualAccount, UserName: "bob", AccountName: "AcctB", Facility: "LabX"},
		},
		{
			name: "new virtual account",
			req:  &AccountRequest{Kind: ReqNewVirtualAccount, UserName: "carol", AccountName: "AcctC"},
		},
		{
			name: "notes",
			req:  &NotesRequest{UserName: "alice", AccountName: "AcctA", Notes: "vacuum pump died at 3pm; left sample in stage"},
		},
		{
			name: "notes with facility",
			req:  &NotesRequest{UserName: "bob", AccountName: "AcctB", Facility: "LabX", Notes: "all good"},
		},
		{
			name: "empty notes",
			req:  &NotesRequest{UserName: "alice", AccountName: "AcctA"},
		},
		{
			name: "facility name query",
			req:  &QueryRequest{Kind: ReqFacilityName, Facility: "LabX"},
		},
		{
			name: "bare facility list query",
			req:  &QueryRequest{Kind: ReqFacilityList},
		},
		{
			name: "use project query",
			req:  &QueryRequest{Kind: ReqUseProject, Facility: "LabX"},
		},
		{
			name: "use full screen query",
			req:  &QueryRequest{Kind: ReqUseFullScreen},
		},
		{
			name: "system password query",
			req:  &QueryRequest{Kind: ReqSystemPassword, Facility: "LabX"},
		},
		{
			name: "net drive query",
			req:  &QueryRequest{Kind: ReqNetDrive, Facility: "LabX"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteRequest(&buf, tc.req))

			got, err := ReadRequest(bufio.NewReader(&buf))
			require.NoError(t, err)
			require.Equal(t, tc.req, got)
		})
	}
}

func TestWriteResponse_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		resp Response
	}{
		{
			name: "command error",
			resp: &CommandErrorResponse{},
		},
		{
			name: "login allowed",
			resp: &LoginResponse{
				Kind:          RespLoginAllowed,
				UserName:      "alice",
				OrgName:       "CMM",
				Timestamp:     "2026-02-02 10:30:00",
				Accounts:      []string{"LabX", "Chem7"},
				Certification: CertificationValid,
				OnsiteAssist:  true,
			},
		},
		{
			name: "login allowed minimal",
			resp: &LoginResponse{
				Kind:          RespVirtualLoginAllowed,
				UserName:      "bob",
				OrgName:       "RMIT",
				Accounts:      []string{"AcctB"},
				Certification: CertificationExpired,
			},
		},
		{
			name: "login allowed without accounts",
			resp: &LoginResponse{
				Kind:          RespNewVirtualLoginAllowed,
				UserName:      "carol",
				OrgName:       "CMM",
				Certification: CertificationNone,
			},
		},
		{
			name: "account allowed",
			resp: &AccountResponse{Kind: RespAccountAllowed, Timestamp: "2026-02-02 10:40:11"},
		},
		{
			name: "notes allowed",
			resp: &AllowedResponse{Kind: RespNotesAllowed},
		},
		{
			name: "facility refused",
			resp: &RefusedResponse{Kind: RespFacilityRefused},
		},
		{
			name: "new virtual login refused",
			resp: &RefusedResponse{Kind: RespNewVirtualLoginRefused},
		},
		{
			name: "facility name",
			resp: &FacilityNameResponse{Facility: "Maskless Lithography"},
		},
		{
			name: "facility count zero",
			resp: &FacilityCountResponse{},
		},
		{
			name: "facility count",
			resp: &FacilityCountResponse{Count: 42},
		},
		{
			name: "facility list",
			resp: &FacilityListResponse{List: []string{"Lab A", "Lab B", "Lab C"}},
		},
		{
			name: "empty facility list",
			resp: &FacilityListResponse{},
		},
		{
			name: "project yes",
			resp: &YesNoResponse{Kind: RespProjectYes, Value: true},
		},
		{
			name: "timer no",
			resp: &YesNoResponse{Kind: RespTimerNo},
		},
		{
			name: "full screen yes",
			resp: &YesNoResponse{Kind: RespFullScreenYes, Value: true},
		},
		{
			name: "use virtual yes",
			resp: &YesNoResponse{Kind: RespUseVirtual, Value: true},
		},
		{
			name: "use virtual no",
			resp: &YesNoResponse{Kind: RespUseVirtual},
		},
		{
			name: "system password granted",
			resp: &SystemPasswordResponse{Kind: RespSystemPasswordYes, Password: "s3cret"},
		},
		{
			name: "system password granted empty",
			resp: &SystemPasswordResponse{Kind: RespSystemPasswordYes},
		},
		{
			name: "system password refused",
			resp: &SystemPasswordResponse{Kind: RespSystemPasswordNo},
		},
		{
			name: "net drive granted",
			resp: &NetDriveResponse{
				Kind:           RespNetDriveYes,
				Drive:          "Z:",
				Folder:         "/projects/cmm",
				AccessName:     "projuser",
				AccessPassword: "pw",
			},
		},
		{
			name: "net drive refused",
			resp: &NetDriveResponse{Kind: RespNetDriveNo},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteResponse(&buf, tc.resp))

			got, err := ReadResponse(bufio.NewReader(&buf))
			require.NoError(t, err)
			require.Equal(t, tc.resp, got)
		})
	}
}

func TestWriteRequest_RejectsUnencodable(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "kind outside family",
			req:  &LoginRequest{Kind: ReqLogout, UserName: "alice", Password: "pw"},
		},
		{
			name: "empty user name",
			req:  &LoginRequest{Kind: ReqLogin, Password: "pw"},
		},
		{
			name: "delimiter in user name",
			req:  &LoginRequest{Kind: ReqLogin, UserName: "ali|ce", Password: "pw"},
		},
		{
			name: "delimiter in password",
			req:  &LoginRequest{Kind: ReqLogin, UserName: "alice", Password: "p?w"},
		},
		{
			name: "delimiter in facility",
			req:  &QueryRequest{Kind: ReqFacilityName, Facility: "Lab;X"},
		},
		{
			name: "line break in notes",
			req:  &NotesRequest{UserName: "alice", AccountName: "AcctA", Notes: "line one\nline two"},
		},
		{
			name: "query kind outside family",
			req:  &QueryRequest{Kind: ReqLogin},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := WriteRequest(&buf, tc.req)
			require.Error(t, err)
			require.Equal(t, KindMessageSyntax, KindOf(err))
			require.Zero(t, buf.Len(), "nothing may reach the wire for a rejected message")
		})
	}
}

func TestWriteResponse_RejectsUnencodable(t *testing.T) {
	tests := []struct {
		name string
		resp Response
	}{
		{
			name: "kind outside family",
			resp: &LoginResponse{Kind: RespLogoutAllowed, UserName: "alice", OrgName: "CMM"},
		},
		{
			name: "delimiter in user name",
			resp: &LoginResponse{Kind: RespLoginAllowed, UserName: "ali]ce", OrgName: "CMM"},
		},
		{
			name: "delimiter in login timestamp",
			resp: &LoginResponse{Kind: RespLoginAllowed, UserName: "alice", OrgName: "CMM", Timestamp: "10:30|tainted"},
		},
		{
			name: "unknown certification",
			resp: &LoginResponse{Kind: RespLoginAllowed, UserName: "alice", OrgName: "CMM", Certification: Certification(99)},
		},
		{
			name: "allowed kind outside family",
			resp: &AllowedResponse{Kind: RespLoginAllowed},
		},
		{
			name: "refused kind outside family",
			resp: &RefusedResponse{Kind: RespSystemPasswordNo},
		},
		{
			name: "contradictory yes/no value",
			resp: &YesNoResponse{Kind: RespProjectYes, Value: false},
		},
		{
			name: "negative facility count",
			resp: &FacilityCountResponse{Count: -1},
		},
		{
			name: "separator in facility list entry",
			resp: &FacilityListResponse{List: []string{"Lab;A"}},
		},
		{
			name: "empty facility list entry",
			resp: &FacilityListResponse{List: []string{""}},
		},
		{
			name: "password on refusing system password",
			resp: &SystemPasswordResponse{Kind: RespSystemPasswordNo, Password: "x"},
		},
		{
			name: "details on refusing net drive",
			resp: &NetDriveResponse{Kind: RespNetDriveNo, Drive: "X:"},
		},
		{
			name: "stop delimiter in drive name",
			resp: &NetDriveResponse{Kind: RespNetDriveYes, Drive: "bad]drive"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := WriteResponse(&buf, tc.resp)
			require.Error(t, err)
			require.Equal(t, KindMessageSyntax, KindOf(err))
			require.Zero(t, buf.Len(), "nothing may reach the wire for a rejected message")
		})
	}
}

func TestWriteRequest_TransportError(t *testing.T) {
	w := &failingWriter{err: errors.New("connection reset")}
	err := WriteRequest(w, &LoginRequest{Kind: ReqLogin, UserName: "alice", Password: "pw"})
	require.Error(t, err)
	require.Equal(t, KindCommunications, KindOf(err))
}

// failingWriter is a writer that always returns an error.
type failingWriter struct {
	err error
}

func (w *failingWriter) Write(p []byte) (n int, err error) {
	return 0, w.err
}
