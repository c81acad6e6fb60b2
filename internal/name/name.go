// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package name implements the hierarchical, component-wise names used to
// address requests and responses over the content-distribution substrate:
// an ordered sequence of components, each either a text label or a
// non-negative integer sequence number.
package name

import (
	"fmt"
	"strconv"
	"strings"
)

// Component is one element of a Name: either a text label or a sequence
// number.
type Component struct {
	text string
	seq  uint64
	isSeq bool
}

// Text returns a text Component.
func Text(s string) Component {
	return Component{text: s}
}

// Seq returns a sequence-number Component.
func Seq(v uint64) Component {
	return Component{seq: v, isSeq: true}
}

// IsSeq reports whether c is a sequence-number component.
func (c Component) IsSeq() bool {
	return c.isSeq
}

// SeqValue returns the sequence number and true if c is a sequence-number
// component.
func (c Component) SeqValue() (uint64, bool) {
	return c.seq, c.isSeq
}

// TextValue returns the text label and true if c is a text component.
func (c Component) TextValue() (string, bool) {
	return c.text, !c.isSeq
}

// Equal reports whether c and o are the same component.
func (c Component) Equal(o Component) bool {
	if c.isSeq != o.isSeq {
		return false
	}
	if c.isSeq {
		return c.seq == o.seq
	}
	return c.text == o.text
}

func (c Component) String() string {
	if c.isSeq {
		return strconv.FormatUint(c.seq, 10)
	}
	return c.text
}

// Name is an ordered, immutable-by-convention sequence of Components.
// All mutating operations (Append, Prefix) return a new Name; they never
// modify the receiver's backing array in place from the caller's
// perspective, though callers should treat a Name as read-only regardless.
type Name []Component

// New builds a Name from the given components.
func New(c ...Component) Name {
	n := make(Name, len(c))
	copy(n, c)
	return n
}

// Parse splits a "/"-separated string into text components. It never
// produces sequence-number components; use AppendSeq for those.
func Parse(s string) Name {
	s = strings.Trim(s, "/")
	if s == "" {
		return Name{}
	}
	parts := strings.Split(s, "/")
	n := make(Name, len(parts))
	for i, p := range parts {
		n[i] = Text(p)
	}
	return n
}

// Append returns a new Name with the given components appended.
func (n Name) Append(c ...Component) Name {
	out := make(Name, len(n)+len(c))
	copy(out, n)
	copy(out[len(n):], c)
	return out
}

// AppendText is a convenience for Append(Text(s)).
func (n Name) AppendText(s string) Name {
	return n.Append(Text(s))
}

// AppendSeq is a convenience for Append(Seq(v)).
func (n Name) AppendSeq(v uint64) Name {
	return n.Append(Seq(v))
}

// Len returns the number of components in n.
func (n Name) Len() int {
	return len(n)
}

// At returns the component at index i. Negative i counts from the end,
// so At(-1) is the last component, mirroring the original implementation's
// Name::at(-1) idiom.
func (n Name) At(i int) Component {
	if i < 0 {
		i += len(n)
	}
	return n[i]
}

// Prefix returns n with its last k components removed ("prefix(-k)" in the
// spec's terms). Prefix(0) returns n unchanged.
func (n Name) Prefix(k int) Name {
	if k <= 0 {
		return n
	}
	if k >= len(n) {
		return Name{}
	}
	out := make(Name, len(n)-k)
	copy(out, n[:len(n)-k])
	return out
}

// PrefixLen returns the first l components of n.
func (n Name) PrefixLen(l int) Name {
	if l >= len(n) {
		return n
	}
	out := make(Name, l)
	copy(out, n[:l])
	return out
}

// Equal reports whether n and o have the same components in the same order.
func (n Name) Equal(o Name) bool {
	if len(n) != len(o) {
		return false
	}
	for i := range n {
		if !n[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// IsPrefixOf reports whether n is a (possibly equal) prefix of o.
func (n Name) IsPrefixOf(o Name) bool {
	if len(n) > len(o) {
		return false
	}
	for i := range n {
		if !n[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

func (n Name) String() string {
	var b strings.Builder
	for _, c := range n {
		b.WriteByte('/')
		b.WriteString(c.String())
	}
	if len(n) == 0 {
		return "/"
	}
	return b.String()
}

// GoString supports fmt's %#v and makes test failures readable.
func (n Name) GoString() string {
	return fmt.Sprintf("name.Parse(%q)", n.String())
}
