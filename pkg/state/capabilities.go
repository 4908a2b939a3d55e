package state

// Capability is a bitmap representing a set of realtime capabilities.
type Capability uint64

const (
	CapRead   Capability = 1 << iota
	CapWrite             // 2
	CapNotify            // 4: may push notifications to other users
	CapAdmin             // 8
)

var BuiltInCaps = map[string]Capability{
	"read":   CapRead,
	"write":  CapWrite,
	"notify": CapNotify,
	"admin":  CapAdmin,
}

func (c Capability) Has(flag Capability) bool {
	return c&flag == flag
}
