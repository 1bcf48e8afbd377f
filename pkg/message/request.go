// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

package message

// LoginRequest authenticates a user. The kind selects between plain,
// virtual, new-virtual and staff logins.
type LoginRequest struct {
	Kind     RequestType
	UserName string
	Password string

	// Facility is the optional facility trailer. Empty means absent; the
	// proxy stamps it onto requests for virtual facilities.
	Facility string
}

func (r *LoginRequest) Type() RequestType { return r.Kind }

// LogoutRequest ends a user's session on an account.
type LogoutRequest struct {
	Kind        RequestType
	UserName    string
	AccountName string
	Facility    string
}

func (r *LogoutRequest) Type() RequestType { return r.Kind }

// AccountRequest selects the account to bill a session against.
type AccountRequest struct {
	Kind        RequestType
	UserName    string
	AccountName string
	Facility    string
}

func (r *AccountRequest) Type() RequestType { return r.Kind }

// NotesRequest attaches free-text session notes to an account. Notes run to
// the end of the line and may contain any byte except a line break.
type NotesRequest struct {
	UserName    string
	AccountName string
	Facility    string
	Notes       string
}

func (*NotesRequest) Type() RequestType { return ReqNotes }

// QueryRequest is an argument-less request: facility name, project, timer,
// use-virtual, facility count, facility list, system password, net drive and
// full-screen queries.
type QueryRequest struct {
	Kind     RequestType
	Facility string
}

func (r *QueryRequest) Type() RequestType { return r.Kind }
