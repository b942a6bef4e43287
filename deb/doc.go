// Package deb reads the metadata of Debian packages and APT repositories.
//
// # Design Philosophy
//
// Everything is read from streams (io.Reader or lines produced by a decode
// pipeline) without temporary files or external tools like 'dpkg'. Large
// inputs are never held in memory: Packages indices are parsed stanza by
// stanza while they download, and the control file of a .deb is extracted
// without reading its data member.
//
// # Features
//
// Control data:
//   - Parse control stanzas, incrementally (StanzaReader) or from a
//     whole document (ParseStanzas, ParseControl).
//   - Extract the control stanza of a .deb, whatever the compression of its
//     control member (ReadControl).
//
// Repositories:
//   - Parse Release files and their SHA256 tables (ParseRelease).
//   - Verify clear-signed InRelease files with Go's openpgp
//     (VerifyInRelease).
//
// Versioning:
//   - Implements Debian version comparison logic (CompareVersions).
package deb
