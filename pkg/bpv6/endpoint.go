// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	schemeDtn = "dtn"
	schemeIpn = "ipn"

	sspNone = "none"
)

// ipnRegex matches the SSP of an "ipn" URI, RFC 6260, section 2.1.
var ipnRegex = regexp.MustCompile(`^(\d+)\.(\d+)$`)

// EndpointID represents an Endpoint ID as defined in RFC 5050, section 4.4, a
// URI of a scheme name and a scheme-specific part (SSP). Two EndpointIDs are
// equal iff both parts are equal, which allows their usage as map keys.
type EndpointID struct {
	Scheme string
	SSP    string
}

// NewEndpointID parses a "scheme:ssp" string.
func NewEndpointID(uri string) (EndpointID, error) {
	idx := strings.IndexByte(uri, ':')
	if idx <= 0 {
		return EndpointID{}, fmt.Errorf("endpoint %q misses a scheme", uri)
	}
	if strings.IndexByte(uri, 0x00) >= 0 {
		return EndpointID{}, fmt.Errorf("endpoint %q contains a NUL byte", uri)
	}

	return EndpointID{Scheme: uri[:idx], SSP: uri[idx+1:]}, nil
}

// MustNewEndpointID returns a new EndpointID like NewEndpointID, but panics in
// case of an error.
func MustNewEndpointID(uri string) EndpointID {
	ep, err := NewEndpointID(uri)
	if err != nil {
		panic(err)
	}
	return ep
}

// DtnNone returns the null endpoint "dtn:none".
func DtnNone() EndpointID {
	return EndpointID{Scheme: schemeDtn, SSP: sspNone}
}

// NewIpnEndpoint creates an "ipn:node.service" EndpointID.
func NewIpnEndpoint(node, service uint64) EndpointID {
	return EndpointID{Scheme: schemeIpn, SSP: fmt.Sprintf("%d.%d", node, service)}
}

func (eid EndpointID) String() string {
	return eid.Scheme + ":" + eid.SSP
}

// IsNone checks if this EndpointID is "dtn:none".
func (eid EndpointID) IsNone() bool {
	return eid == DtnNone()
}

// ipnNumbers returns the node and service number of an "ipn" EndpointID.
func (eid EndpointID) ipnNumbers() (node, service uint64, ok bool) {
	if eid.Scheme != schemeIpn {
		return
	}

	matches := ipnRegex.FindStringSubmatch(eid.SSP)
	if matches == nil {
		return
	}

	var err error
	if node, err = strconv.ParseUint(matches[1], 10, 64); err != nil {
		return 0, 0, false
	}
	if service, err = strconv.ParseUint(matches[2], 10, 64); err != nil {
		return 0, 0, false
	}

	ok = true
	return
}

// splitSSP divides the SSP into its leading slashes, the node and the
// application part, e.g., "//node/app/x" results in "//", "node" and "app/x".
func (eid EndpointID) splitSSP() (prefix, node, app string) {
	rest := strings.TrimLeft(eid.SSP, "/")
	prefix = eid.SSP[:len(eid.SSP)-len(rest)]

	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return prefix, rest[:idx], rest[idx+1:]
	}
	return prefix, rest, ""
}

// Node returns the node part of this EndpointID's SSP, e.g., "a" for
// "dtn://a/app" or "23" for "ipn:23.42".
func (eid EndpointID) Node() string {
	if node, _, ok := eid.ipnNumbers(); ok {
		return strconv.FormatUint(node, 10)
	}

	_, node, _ := eid.splitSSP()
	return node
}

// Application returns the application part of this EndpointID's SSP, e.g.,
// "app" for "dtn://a/app" or "42" for "ipn:23.42".
func (eid EndpointID) Application() string {
	if _, service, ok := eid.ipnNumbers(); ok {
		return strconv.FormatUint(service, 10)
	}

	_, _, app := eid.splitSSP()
	return app
}

// NodeEID returns this EndpointID without its application part, e.g.,
// "dtn://a" for "dtn://a/app" or "ipn:23.0" for "ipn:23.42".
func (eid EndpointID) NodeEID() EndpointID {
	if node, _, ok := eid.ipnNumbers(); ok {
		return NewIpnEndpoint(node, 0)
	}

	prefix, node, _ := eid.splitSSP()
	return EndpointID{Scheme: eid.Scheme, SSP: prefix + node}
}

// SameNode checks if both EndpointIDs address the same node.
func (eid EndpointID) SameNode(other EndpointID) bool {
	return eid.NodeEID() == other.NodeEID()
}

// IsCompressable checks if this EndpointID can be expressed by RFC 6260's
// Compressed Bundle Header Encoding, i.e., is "dtn:none" or "ipn:N.S".
func (eid EndpointID) IsCompressable() bool {
	_, _, ok := eid.CompressedRef()
	return ok
}

// CompressedRef returns the node and service numbers for the Compressed Bundle
// Header Encoding. "dtn:none" results in (0, 0).
//
// Only ipn SSPs in their canonical decimal form are compressable, as they are
// restored from the numbers alone. "ipn:0.0" is not, since (0, 0) is "dtn:none".
func (eid EndpointID) CompressedRef() (node, service uint64, ok bool) {
	if eid.IsNone() {
		return 0, 0, true
	}

	node, service, ok = eid.ipnNumbers()
	if !ok || (node == 0 && service == 0) || NewIpnEndpoint(node, service) != eid {
		return 0, 0, false
	}
	return
}

// compressedEndpoint is the reverse of EndpointID.CompressedRef.
func compressedEndpoint(node, service uint64) EndpointID {
	if node == 0 && service == 0 {
		return DtnNone()
	}
	return NewIpnEndpoint(node, service)
}

// Less orders EndpointIDs by their string representation.
func (eid EndpointID) Less(other EndpointID) bool {
	return eid.String() < other.String()
}

// MarshalJSON writes this EndpointID as a JSON string.
func (eid EndpointID) MarshalJSON() ([]byte, error) {
	return json.Marshal(eid.String())
}

// UnmarshalJSON reads an EndpointID from a JSON string.
func (eid *EndpointID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	ep, err := NewEndpointID(s)
	if err != nil {
		return err
	}
	*eid = ep
	return nil
}
