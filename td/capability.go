package td

// Mode summarises the direction a property supports.
type Mode string

const (
	ReadOnly  Mode = "read-only"
	WriteOnly Mode = "write-only"
	ReadWrite Mode = "readwrite"
)

// Capability is derived from a property descriptor and describes what a
// client may do with it. It is recomputed from the descriptor on demand and
// never mutated in place.
type Capability struct {
	CanRead    bool
	CanWrite   bool
	CanObserve bool
	Mode       Mode
}

func DeriveCapability(p Property) Capability {
	c := Capability{
		CanRead:    !p.WriteOnly,
		CanWrite:   !p.ReadOnly,
		CanObserve: p.Observable,
		Mode:       ReadWrite,
	}

	switch {
	case !c.CanWrite:
		c.Mode = ReadOnly
	case !c.CanRead:
		c.Mode = WriteOnly
	}

	return c
}
