// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

package message

// CommandErrorResponse reports that the server could not make sense of the
// last request.
type CommandErrorResponse struct{}

func (*CommandErrorResponse) Type() ResponseType { return RespCommandError }

// AllowedResponse is a bare acknowledgement for the request kinds that carry
// no payload on success: logout, virtual logout, notes and staff login.
type AllowedResponse struct {
	Kind ResponseType
}

func (r *AllowedResponse) Type() ResponseType { return r.Kind }

// RefusedResponse is the generic refusal for any refusable request kind.
type RefusedResponse struct {
	Kind ResponseType
}

func (r *RefusedResponse) Type() ResponseType { return r.Kind }

// LoginResponse is the payload of a successful login, virtual login or new
// virtual login.
type LoginResponse struct {
	Kind     ResponseType
	UserName string
	OrgName  string

	// Timestamp is empty when the server sent no time field.
	Timestamp string

	// Accounts preserves server order; indices are meaningful downstream.
	Accounts []string

	Certification Certification
	OnsiteAssist  bool
}

func (r *LoginResponse) Type() ResponseType { return r.Kind }

// AccountResponse acknowledges an account selection with the server's
// session timestamp.
type AccountResponse struct {
	Kind      ResponseType
	Timestamp string
}

func (r *AccountResponse) Type() ResponseType { return r.Kind }

// FacilityNameResponse names the facility the server has assigned to the
// caller's network address.
type FacilityNameResponse struct {
	Facility string
}

func (*FacilityNameResponse) Type() ResponseType { return RespFacilityAllowed }

// FacilityCountResponse carries the number of subfacilities of a virtual
// facility.
type FacilityCountResponse struct {
	Count int
}

func (*FacilityCountResponse) Type() ResponseType { return RespFacilityCount }

// FacilityListResponse carries the subfacility names of a virtual facility.
// Order and duplicates are preserved exactly as received.
type FacilityListResponse struct {
	List []string
}

func (*FacilityListResponse) Type() ResponseType { return RespFacilityList }

// YesNoResponse answers the project, timer, full-screen and use-virtual
// queries.
type YesNoResponse struct {
	Kind  ResponseType
	Value bool
}

func (r *YesNoResponse) Type() ResponseType { return r.Kind }

// SystemPasswordResponse carries the system password when present. The kind
// distinguishes the present and absent variants; an empty Password with the
// yes kind is a real, empty password.
type SystemPasswordResponse struct {
	Kind     ResponseType
	Password string
}

func (r *SystemPasswordResponse) Type() ResponseType { return r.Kind }

// NetDriveResponse carries the network drive mapping details when present.
type NetDriveResponse struct {
	Kind           ResponseType
	Drive          string
	Folder         string
	AccessName     string
	AccessPassword string
}

func (r *NetDriveResponse) Type() ResponseType { return r.Kind }
