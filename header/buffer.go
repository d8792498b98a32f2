// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package header implements an append-only byte arena for storing HTTP
// header name/value pairs, indexed by (offset, length) rather than by
// Go string header, so that growing the underlying buffer never
// invalidates a previously returned Entry.
package header

// DefaultMemoryBytes is the initial capacity reserved for a Buffer's
// byte arena.
const DefaultMemoryBytes = 16384

// DefaultCount is the initial capacity reserved for a Buffer's entry
// index.
const DefaultCount = 16

// An Entry identifies the name and value of one header occurrence by
// offset and length into the owning Buffer's arena. Entry values are
// only meaningful in combination with the Buffer that produced them.
type Entry struct {
	NameOffset, NameLen   int
	ValueOffset, ValueLen int
}

// A Buffer is an append-only arena of header bytes plus an ordered
// index of the name/value pairs appended to it.
//
// A Buffer is not safe for concurrent use. Callers must serialize
// access the same way they serialize access to the owning Request.
type Buffer struct {
	data    []byte
	entries []Entry
}

// NewBuffer constructs an empty Buffer with the default initial
// capacities.
func NewBuffer() *Buffer {
	b := &Buffer{}
	b.data = make([]byte, 0, DefaultMemoryBytes)
	b.entries = make([]Entry, 0, DefaultCount)
	return b
}

// Add appends a name/value pair to the buffer and returns its index.
// An empty value is legal: it is stored as a zero-length value, which
// callers may use to suppress a header that would otherwise be added
// automatically by the transport.
func (b *Buffer) Add(name, value string) int {
	nameOff, nameLen := b.append(name)
	valueOff, valueLen := b.append(value)
	b.entries = append(b.entries, Entry{
		NameOffset: nameOff, NameLen: nameLen,
		ValueOffset: valueOff, ValueLen: valueLen,
	})
	return len(b.entries) - 1
}

// append grows the arena as needed and copies s into it, returning the
// offset and length of the copy. Entries store only offset/length
// pairs, which At resolves against the current arena on every call, so
// a reallocation during growth never invalidates an earlier entry.
func (b *Buffer) append(s string) (offset, length int) {
	offset = len(b.data)
	length = len(s)
	need := offset + length
	if need > cap(b.data) {
		newCap := cap(b.data)*2 + 1
		if newCap < need {
			newCap = need
		}
		grown := make([]byte, offset, newCap)
		copy(grown, b.data)
		b.data = grown
	}
	b.data = append(b.data, s...)
	return offset, length
}

// Len returns the number of name/value pairs in the buffer.
func (b *Buffer) Len() int {
	return len(b.entries)
}

// At returns the name and value of the entry at index i.
func (b *Buffer) At(i int) (name, value string) {
	e := b.entries[i]
	return string(b.data[e.NameOffset : e.NameOffset+e.NameLen]),
		string(b.data[e.ValueOffset : e.ValueOffset+e.ValueLen])
}

// Each calls f once for every name/value pair, in the order they were
// added.
func (b *Buffer) Each(f func(name, value string)) {
	for i := range b.entries {
		name, value := b.At(i)
		f(name, value)
	}
}

// Reset clears the buffer for reuse, retaining its allocated capacity.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.entries = b.entries[:0]
}
