package replica

// Client identifiers 0 and 1 are reserved: 0 means "not assigned yet",
// 1 is the authority itself. Clients get 2-255 in connection order.
const (
	ClientIDNone      byte = 0
	ClientIDAuthority byte = 1
	ClientIDMin       byte = 2
)

// PackID combines a client identifier and that client's local sequence
// number into a session-unique 64-bit entity identifier.
func PackID(clientID byte, localID uint32) uint64 {
	return uint64(clientID)<<56 | uint64(localID)
}

// UnpackClientID returns the owning client identifier of id.
func UnpackClientID(id uint64) byte {
	return byte(id >> 56)
}

// UnpackLocalID returns the owner-local sequence number of id.
func UnpackLocalID(id uint64) uint32 {
	return uint32(id)
}
