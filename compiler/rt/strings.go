package rt

import "tlog.app/go/errors"

type (
	// Strings is a table of reference counted string handles.
	// Handle 0 is the empty string, so zeroed memory holds valid strings.
	Strings struct {
		s    []string
		refs []int32
	}
)

// static handles are never freed.
const static = -1

var ErrInvalidString = errors.New("invalid string handle")

// New returns a handle with a single reference.
func (t *Strings) New(s string) uint64 {
	return t.add(s, 1)
}

// Static returns a handle unaffected by Retain and Release.
func (t *Strings) Static(s string) uint64 {
	return t.add(s, static)
}

func (t *Strings) Get(h uint64) (string, error) {
	if h == 0 {
		return "", nil
	}

	if h >= uint64(len(t.s)) || t.refs[h] == 0 {
		return "", errors.Wrap(ErrInvalidString, "handle %d", h)
	}

	return t.s[h], nil
}

func (t *Strings) Retain(h uint64) error {
	if _, err := t.Get(h); err != nil || h == 0 {
		return err
	}

	if t.refs[h] != static {
		t.refs[h]++
	}

	return nil
}

func (t *Strings) Release(h uint64) error {
	if _, err := t.Get(h); err != nil || h == 0 {
		return err
	}

	if t.refs[h] == static {
		return nil
	}

	t.refs[h]--

	if t.refs[h] == 0 {
		t.s[h] = ""
	}

	return nil
}

// Live is the number of dynamic strings still referenced.
func (t *Strings) Live() (n int) {
	for h := 1; h < len(t.refs); h++ {
		if t.refs[h] > 0 {
			n++
		}
	}

	return n
}

func (t *Strings) add(s string, refs int32) uint64 {
	if len(t.s) == 0 {
		t.s = append(t.s, "")
		t.refs = append(t.refs, static)
	}

	t.s = append(t.s, s)
	t.refs = append(t.refs, refs)

	return uint64(len(t.s) - 1)
}
