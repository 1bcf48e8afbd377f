// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

package message

import "strconv"

// RequestType identifies a client-to-server message kind by its wire command
// code.
type RequestType int

// Request command codes. The corresponding response codes are the request
// code times ten, plus one for "allowed" and two for "refused".
const (
	ReqLogin             RequestType = 1
	ReqLogout            RequestType = 2
	ReqAccount           RequestType = 3
	ReqNotes             RequestType = 4
	ReqFacilityName      RequestType = 5
	ReqUseProject        RequestType = 6
	ReqUseTimer          RequestType = 7
	ReqUseVirtual        RequestType = 8
	ReqFacilityCount     RequestType = 9
	ReqFacilityList      RequestType = 10
	ReqVirtualLogin      RequestType = 11
	ReqVirtualLogout     RequestType = 12
	ReqVirtualAccount    RequestType = 13
	ReqNewVirtualLogin   RequestType = 14
	ReqNewVirtualAccount RequestType = 15
	ReqSystemPassword    RequestType = 20
	ReqStaffLogin        RequestType = 21
	ReqNetDrive          RequestType = 22
	ReqUseFullScreen     RequestType = 23
)

// ResponseType identifies a server-to-client message kind by its wire command
// code.
type ResponseType int

// Response command codes.
const (
	RespCommandError ResponseType = 0

	RespLoginAllowed ResponseType = 11
	RespLoginRefused ResponseType = 12

	RespLogoutAllowed ResponseType = 21
	RespLogoutRefused ResponseType = 22

	RespAccountAllowed ResponseType = 31
	RespAccountRefused ResponseType = 32

	RespNotesAllowed ResponseType = 41
	RespNotesRefused ResponseType = 42

	RespFacilityAllowed ResponseType = 51
	RespFacilityRefused ResponseType = 52

	RespProjectYes ResponseType = 61
	RespProjectNo  ResponseType = 62

	RespTimerYes ResponseType = 71
	RespTimerNo  ResponseType = 72

	RespUseVirtual ResponseType = 81

	RespFacilityCount ResponseType = 91

	RespFacilityList ResponseType = 101

	RespVirtualLoginAllowed ResponseType = 111
	RespVirtualLoginRefused ResponseType = 112

	RespVirtualLogoutAllowed ResponseType = 121
	RespVirtualLogoutRefused ResponseType = 122

	RespVirtualAccountAllowed ResponseType = 131
	RespVirtualAccountRefused ResponseType = 132

	RespNewVirtualLoginAllowed ResponseType = 141
	RespNewVirtualLoginRefused ResponseType = 142

	RespNewVirtualAccountAllowed ResponseType = 151
	RespNewVirtualAccountRefused ResponseType = 152

	RespSystemPasswordYes ResponseType = 201
	RespSystemPasswordNo  ResponseType = 202

	RespStaffLoginAllowed ResponseType = 211
	RespStaffLoginRefused ResponseType = 212

	RespNetDriveYes ResponseType = 221
	RespNetDriveNo  ResponseType = 222

	RespFullScreenYes ResponseType = 231
	RespFullScreenNo  ResponseType = 232
)

// requestTypeNames is the registry of known request codes. Parsing is an
// exact match against this table.
var requestTypeNames = map[RequestType]string{
	ReqLogin:             "login",
	ReqLogout:            "logout",
	ReqAccount:           "account",
	ReqNotes:             "notes",
	ReqFacilityName:      "facility_name",
	ReqUseProject:        "use_project",
	ReqUseTimer:          "use_timer",
	ReqUseVirtual:        "use_virtual",
	ReqFacilityCount:     "facility_count",
	ReqFacilityList:      "facility_list",
	ReqVirtualLogin:      "virtual_login",
	ReqVirtualLogout:     "virtual_logout",
	ReqVirtualAccount:    "virtual_account",
	ReqNewVirtualLogin:   "new_virtual_login",
	ReqNewVirtualAccount: "new_virtual_account",
	ReqSystemPassword:    "system_password",
	ReqStaffLogin:        "staff_login",
	ReqNetDrive:          "net_drive",
	ReqUseFullScreen:     "use_full_screen",
}

// responseTypeNames is the registry of known response codes.
var responseTypeNames = map[ResponseType]string{
	RespCommandError:             "command_error",
	RespLoginAllowed:             "login_allowed",
	RespLoginRefused:             "login_refused",
	RespLogoutAllowed:            "logout_allowed",
	RespLogoutRefused:            "logout_refused",
	RespAccountAllowed:           "account_allowed",
	RespAccountRefused:           "account_refused",
	RespNotesAllowed:             "notes_allowed",
	RespNotesRefused:             "notes_refused",
	RespFacilityAllowed:          "facility_allowed",
	RespFacilityRefused:          "facility_refused",
	RespProjectYes:               "project_yes",
	RespProjectNo:                "project_no",
	RespTimerYes:                 "timer_yes",
	RespTimerNo:                  "timer_no",
	RespUseVirtual:               "use_virtual",
	RespFacilityCount:            "facility_count",
	RespFacilityList:             "facility_list",
	RespVirtualLoginAllowed:      "virtual_login_allowed",
	RespVirtualLoginRefused:      "virtual_login_refused",
	RespVirtualLogoutAllowed:     "virtual_logout_allowed",
	RespVirtualLogoutRefused:     "virtual_logout_refused",
	RespVirtualAccountAllowed:    "virtual_account_allowed",
	RespVirtualAccountRefused:    "virtual_account_refused",
	RespNewVirtualLoginAllowed:   "new_virtual_login_allowed",
	RespNewVirtualLoginRefused:   "new_virtual_login_refused",
	RespNewVirtualAccountAllowed: "new_virtual_account_allowed",
	RespNewVirtualAccountRefused: "new_virtual_account_refused",
	RespSystemPasswordYes:        "system_password_yes",
	RespSystemPasswordNo:         "system_password_no",
	RespStaffLoginAllowed:        "staff_login_allowed",
	RespStaffLoginRefused:        "staff_login_refused",
	RespNetDriveYes:              "net_drive_yes",
	RespNetDriveNo:               "net_drive_no",
	RespFullScreenYes:            "full_screen_yes",
	RespFullScreenNo:             "full_screen_no",
}

// ParseRequestType resolves a wire command token to a request type. An
// unknown or non-numeric token is a syntax error, not a lookup miss.
func ParseRequestType(token string) (RequestType, error) {
	code, err := strconv.Atoi(token)
	if err != nil {
		return 0, syntaxErrorf("unknown request command token %q", token)
	}
	t := RequestType(code)
	if _, ok := requestTypeNames[t]; !ok {
		return 0, syntaxErrorf("unknown request command code %d", code)
	}
	return t, nil
}

// ParseResponseType resolves a wire command token to a response type. An
// unknown or non-numeric token is a syntax error, not a lookup miss.
func ParseResponseType(token string) (ResponseType, error) {
	code, err := strconv.Atoi(token)
	if err != nil {
		return 0, syntaxErrorf("unknown response command token %q", token)
	}
	t := ResponseType(code)
	if _, ok := responseTypeNames[t]; !ok {
		return 0, syntaxErrorf("unknown response command code %d", code)
	}
	return t, nil
}

// Code returns the numeric wire command code.
func (t RequestType) Code() int { return int(t) }

func (t RequestType) String() string {
	if name, ok := requestTypeNames[t]; ok {
		return name
	}
	return "request(" + strconv.Itoa(int(t)) + ")"
}

// Code returns the numeric wire command code.
func (t ResponseType) Code() int { return int(t) }

func (t ResponseType) String() string {
	if name, ok := responseTypeNames[t]; ok {
		return name
	}
	return "response(" + strconv.Itoa(int(t)) + ")"
}
