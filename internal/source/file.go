// Package source describes candidate export files and loads transcript
// text from them.
package source

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Kind is the shape of an export.
type Kind string

const (
	KindZip    Kind = "zip"
	KindFolder Kind = "folder"
	KindFile   Kind = "file"
)

// KindOf guesses the kind from a file name.
func KindOf(name string) Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".zip":
		return KindZip
	case ".txt":
		return KindFile
	default:
		return KindFolder
	}
}

// Origin says where an export's bytes come from. Exactly one of Inline,
// ServerPath or Handle.
type Origin interface{ isOrigin() }

// Inline carries transcript text that is already in memory.
type Inline struct{ Text string }

// ServerPath names a file or folder reachable through a Fetcher.
type ServerPath struct{ Path string }

// Handle is a locally openable file, such as a path given on the command
// line or a multipart upload.
type Handle struct {
	Name string
	Open func() (io.ReadCloser, error)
}

func (Inline) isOrigin()     {}
func (ServerPath) isOrigin() {}
func (Handle) isOrigin()     {}

// FileHandle returns a Handle that opens path on each call.
func FileHandle(path string) Handle {
	return Handle{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// Identity is what is known about whose chat an export holds.
type Identity interface{ isIdentity() }

// Known identifies the chat by phone number.
type Known struct {
	PhoneNumber string
	ContactName string
}

// Pending marks an export named after a contact. The phone number must be
// supplied by the user before extraction.
type Pending struct {
	ContactName string
	Provided    string
}

func (Known) isIdentity()   {}
func (Pending) isIdentity() {}

// ImportFile is a candidate export. Values are immutable; the With and
// Resolve methods return modified copies.
type ImportFile struct {
	Name     string
	Kind     Kind
	Origin   Origin
	Identity Identity
}

// ID is the file's identity for de-duplication and selection: the server
// path when there is one, else the name.
func (f ImportFile) ID() string {
	if sp, ok := f.Origin.(ServerPath); ok && sp.Path != "" {
		return sp.Path
	}
	return f.Name
}

// PhoneNumber returns the known number, or the user-provided one for a
// pending identity.
func (f ImportFile) PhoneNumber() string {
	switch id := f.Identity.(type) {
	case Known:
		return id.PhoneNumber
	case Pending:
		return strings.TrimSpace(id.Provided)
	}
	return ""
}

// ContactName returns the contact name, if any.
func (f ImportFile) ContactName() string {
	switch id := f.Identity.(type) {
	case Known:
		return id.ContactName
	case Pending:
		return id.ContactName
	}
	return ""
}

// NeedsPhoneNumber reports whether the user still has to supply a number.
func (f ImportFile) NeedsPhoneNumber() bool {
	p, ok := f.Identity.(Pending)
	return ok && strings.TrimSpace(p.Provided) == ""
}

// IsPending reports whether the identity came from a contact name.
func (f ImportFile) IsPending() bool {
	_, ok := f.Identity.(Pending)
	return ok
}

// WithProvidedPhone records a user-entered number on a pending identity.
// Known identities are returned unchanged.
func (f ImportFile) WithProvidedPhone(phoneNumber string) ImportFile {
	if p, ok := f.Identity.(Pending); ok {
		p.Provided = phoneNumber
		f.Identity = p
	}
	return f
}

// Resolve turns a pending identity with a provided number into a known
// one. Anything else is returned unchanged.
func (f ImportFile) Resolve() ImportFile {
	if p, ok := f.Identity.(Pending); ok && strings.TrimSpace(p.Provided) != "" {
		f.Identity = Known{PhoneNumber: strings.TrimSpace(p.Provided), ContactName: p.ContactName}
	}
	return f
}

// ServerPath returns the server-side path, if the file has one.
func (f ImportFile) ServerPath() (string, bool) {
	sp, ok := f.Origin.(ServerPath)
	return sp.Path, ok && sp.Path != ""
}

// FolderPath returns the server-side directory of an unzipped export.
func (f ImportFile) FolderPath() (string, bool) {
	if f.Kind != KindFolder {
		return "", false
	}
	return f.ServerPath()
}
