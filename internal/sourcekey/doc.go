// Package sourcekey derives stable track keys from Go call sites.
//
// A key names a call site by where it is, not by what it contains: the
// file, the enclosing declaration, the variable the result is assigned to,
// the tracked function called and the ordinal among otherwise identical
// sites. Reformatting a file, or editing the literals and closures passed
// to a call, leaves its key unchanged, so a reloaded definition rebinds
// the same track.
package sourcekey
