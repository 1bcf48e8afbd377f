// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

package message

import "strings"

// Certification is the user certification level carried by a login response.
type Certification int

const (
	CertificationValid Certification = iota
	CertificationExpired
	CertificationNone
)

// certificationTokens maps each certification to its canonical wire token.
// Parsing is case-insensitive; encoding always emits the canonical form.
var certificationTokens = map[Certification]string{
	CertificationValid:   "Valid",
	CertificationExpired: "Expired",
	CertificationNone:    "None",
}

// ParseCertification resolves a wire token to a certification level. An
// unknown token is a syntax error, the same failure mode as an unknown
// command token.
func ParseCertification(token string) (Certification, error) {
	for c, t := range certificationTokens {
		if strings.EqualFold(token, t) {
			return c, nil
		}
	}
	return 0, syntaxErrorf("unknown certification token %q", token)
}

func (c Certification) String() string {
	if t, ok := certificationTokens[c]; ok {
		return t
	}
	return "certification(unknown)"
}
