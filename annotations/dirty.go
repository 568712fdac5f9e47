package annotations

// DirtyFlag coalesces any number of change notifications into a single
// pending unit of work. The zero value is Satisfied.
type DirtyFlag uint8

const (
	Satisfied DirtyFlag = iota
	Pending
)

// Mark records that work is owed.
func (f *DirtyFlag) Mark() {
	*f = Pending
}

// ConsumeIfPending claims owed work. It returns true at most once per Mark.
func (f *DirtyFlag) ConsumeIfPending() bool {
	if *f != Pending {
		return false
	}
	*f = Satisfied
	return true
}

func (f DirtyFlag) String() string {
	if f == Pending {
		return "pending"
	}
	return "satisfied"
}

// once runs an effect a single time and remembers that it did.
type once bool

func (o *once) do(fn func()) {
	if *o {
		return
	}
	*o = true
	fn()
}

func (o once) happened() bool {
	return bool(o)
}
