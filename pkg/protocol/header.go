package protocol

import "fmt"

// Version identifies the protocol revision announced in the connection
// header.
type Version struct {
	Major    uint8
	Minor    uint8
	Revision uint8
}

// V091 is the revision spoken by current brokers.
var V091 = Version{Major: 0, Minor: 9, Revision: 1}

// String returns the dotted form, e.g. "0-9-1".
func (v Version) String() string {
	return fmt.Sprintf("%d-%d-%d", v.Major, v.Minor, v.Revision)
}

// Header returns the 8-byte protocol header announcing v. It is written
// once, before any frame. Revisioned protocols follow the ASCII "AMQP"
// literal with a zero octet then major/minor/revision; revision-less ones
// carry the legacy 1,1,major,minor form.
func (v Version) Header() [8]byte {
	h := [8]byte{'A', 'M', 'Q', 'P'}
	if v.Revision != 0 {
		h[4], h[5], h[6], h[7] = 0, v.Major, v.Minor, v.Revision
	} else {
		h[4], h[5], h[6], h[7] = 1, 1, v.Major, v.Minor
	}
	return h
}
