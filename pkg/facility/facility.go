// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

// Package facility provides the registry of instrument facilities known to
// the proxy. The registry is loaded once from a JSON file and answers three
// questions for the rest of the system: which facility a client connection
// belongs to, where the upstream ACLS server lives, and whether clients
// label ACLS accounts as "account" or "project" names.
package facility

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
)

// DefaultServerPort is assumed when the registry file does not name one.
const DefaultServerPort = 1024

// Facility describes one registered instrument facility.
type Facility struct {
	// Name is the facility name used on the wire.
	Name string `json:"name"`

	// ID is an optional stable identifier, distinct from the display name.
	ID string `json:"id,omitempty"`

	// Address is the network address the facility's client connects from.
	// Lookups match it textually, so configure the form connections
	// actually present (usually the IP literal).
	Address string `json:"address"`

	Description string `json:"description,omitempty"`

	// Drive mapping handed out in answer to a net-drive query. An empty
	// Drive means the facility has no mapping.
	Drive          string `json:"drive,omitempty"`
	Folder         string `json:"folder,omitempty"`
	AccessName     string `json:"accessName,omitempty"`
	AccessPassword string `json:"accessPassword,omitempty"`

	// UseVirtual marks a shared-access (vMFL) facility.
	UseVirtual bool `json:"useVirtual,omitempty"`

	// Dummy marks the facility reserved for checking user credentials.
	Dummy bool `json:"dummy,omitempty"`
}

// HasNetDrive reports whether the facility carries a drive mapping.
func (f *Facility) HasNetDrive() bool {
	return f.Drive != ""
}

// registryFile is the on-disk JSON shape.
type registryFile struct {
	ServerHost string      `json:"serverHost"`
	ServerPort int         `json:"serverPort"`
	UseProject bool        `json:"useProject"`
	Facilities []*Facility `json:"facilities"`
}

// Registry is an immutable facility directory. It is safe for concurrent
// use once built.
type Registry struct {
	serverHost string
	serverPort int
	useProject bool
	facilities []*Facility
	byAddress  map[string]*Facility
	byID       map[string]*Facility
	byName     map[string]*Facility
}

// Load reads and parses the registry file at path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read facility registry: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("facility registry %s: %w", path, err)
	}
	return r, nil
}

// Parse builds a registry from raw JSON.
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if file.ServerHost == "" {
		return nil, fmt.Errorf("serverHost is required")
	}
	if file.ServerPort == 0 {
		file.ServerPort = DefaultServerPort
	}
	if file.ServerPort < 1 || file.ServerPort > 65535 {
		return nil, fmt.Errorf("serverPort %d out of range", file.ServerPort)
	}

	r := &Registry{
		serverHost: file.ServerHost,
		serverPort: file.ServerPort,
		useProject: file.UseProject,
		facilities: file.Facilities,
		byAddress:  make(map[string]*Facility, len(file.Facilities)),
		byID:       make(map[string]*Facility, len(file.Facilities)),
		byName:     make(map[string]*Facility, len(file.Facilities)),
	}
	for i, f := range file.Facilities {
		if f == nil {
			return nil, fmt.Errorf("facility %d is null", i)
		}
		if f.Name == "" {
			return nil, fmt.Errorf("facility %d has no name", i)
		}
		if f.Address == "" {
			return nil, fmt.Errorf("facility %q has no address", f.Name)
		}
		if _, dup := r.byName[f.Name]; dup {
			return nil, fmt.Errorf("duplicate facility name %q", f.Name)
		}
		if _, dup := r.byAddress[f.Address]; dup {
			return nil, fmt.Errorf("duplicate facility address %q", f.Address)
		}
		r.byName[f.Name] = f
		r.byAddress[f.Address] = f
		if f.ID != "" {
			if _, dup := r.byID[f.ID]; dup {
				return nil, fmt.Errorf("duplicate facility id %q", f.ID)
			}
			r.byID[f.ID] = f
		}
	}
	return r, nil
}

// ServerAddress returns the upstream ACLS server as host:port.
func (r *Registry) ServerAddress() string {
	return net.JoinHostPort(r.serverHost, strconv.Itoa(r.serverPort))
}

// UseProject reports whether clients label ACLS accounts as project names.
func (r *Registry) UseProject() bool {
	return r.useProject
}

// ByAddress returns the facility registered at the given network address,
// or nil if the address is unknown. A host:port address is reduced to its
// host before matching.
func (r *Registry) ByAddress(addr string) *Facility {
	if f, ok := r.byAddress[addr]; ok {
		return f
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return r.byAddress[host]
	}
	return nil
}

// ByID returns the facility with the given identifier, or nil.
func (r *Registry) ByID(id string) *Facility {
	return r.byID[id]
}

// ByName returns the facility with the given name, or nil.
func (r *Registry) ByName(name string) *Facility {
	return r.byName[name]
}

// Facilities returns all facilities in file order. The returned slice is
// shared; callers must not modify it.
func (r *Registry) Facilities() []*Facility {
	return r.facilities
}

// DummyFacility returns the facility reserved for credential checks, or
// nil if none is registered.
func (r *Registry) DummyFacility() *Facility {
	for _, f := range r.facilities {
		if f.Dummy {
			return f
		}
	}
	return nil
}
