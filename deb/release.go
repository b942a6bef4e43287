package deb

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
)

// ErrNotSigned is returned by VerifyInRelease for input without a
// clear-signed message.
var ErrNotSigned = errors.New("no clear-signed message found")

// Release holds the metadata of a Release (or InRelease) file.
//
// Reference: https://wiki.debian.org/DebianRepository/Format#A.22Release.22_files
type Release struct {
	Origin        string
	Label         string
	Suite         string
	Version       string
	Codename      string
	Date          string
	ValidUntil    string
	Architectures []string
	Components    []string
	Description   string
	// SHA256 lists the checksum of every index file of the repository.
	SHA256 []FileHash
}

// FileHash is one line of a Release checksum table.
type FileHash struct {
	Hash string
	Size int64
	Path string
}

// ParseRelease parses the content of a Release file.
func ParseRelease(content string) (*Release, error) {
	stanzas, err := ParseStanzas(content)
	if err != nil {
		return nil, fmt.Errorf("parsing release: %w", err)
	}
	if len(stanzas) == 0 {
		return nil, fmt.Errorf("parsing release: empty file")
	}
	s := stanzas[0]
	get := func(f ReleaseField) string { return s.Get(ControlField(f)) }
	r := &Release{
		Origin:        get(RelOrigin),
		Label:         get(RelLabel),
		Suite:         get(RelSuite),
		Version:       get(RelVersion),
		Codename:      get(RelCodename),
		Date:          get(RelDate),
		ValidUntil:    get(RelValidUntil),
		Architectures: strings.Fields(get(RelArchitectures)),
		Components:    strings.Fields(get(RelComponents)),
		Description:   get(RelDescription),
	}
	for _, line := range strings.Split(get(RelSHA256), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("parsing release: invalid %s line %q", RelSHA256, line)
		}
		size, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing release: invalid size in %q: %w", line, err)
		}
		r.SHA256 = append(r.SHA256, FileHash{Hash: strings.ToLower(fields[0]), Size: size, Path: fields[2]})
	}
	return r, nil
}

// Lookup returns the checksum entry of the index file at path, relative to
// the directory of the Release file.
func (r *Release) Lookup(path string) (FileHash, bool) {
	for _, h := range r.SHA256 {
		if h.Path == path {
			return h, true
		}
	}
	return FileHash{}, false
}

// VerifyInRelease checks the signature of a clear-signed InRelease file
// against the armored public keys in keyring, and returns the signed
// Release content.
func VerifyInRelease(data []byte, keyring string) (string, error) {
	block, _ := clearsign.Decode(data)
	if block == nil {
		return "", ErrNotSigned
	}
	keys, err := openpgp.ReadArmoredKeyRing(strings.NewReader(keyring))
	if err != nil {
		return "", fmt.Errorf("reading keyring: %w", err)
	}
	if _, err := block.VerifySignature(keys, nil); err != nil {
		return "", fmt.Errorf("verifying InRelease signature: %w", err)
	}
	return string(block.Plaintext), nil
}
