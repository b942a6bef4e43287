package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/etnz/library-versions/apt"
	"github.com/etnz/library-versions/registry"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Core deterministic encoding: sorted map keys, so an unchanged state
	// produces an identical file.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor: creating encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor: creating decoder: %v", err))
	}
}

// stateFile is what the state file holds between runs.
type stateFile struct {
	// Versions last reported, by resolver name.
	Versions map[string][]string `cbor:"versions"`
	// Assets are the .deb files already inspected, by URL.
	Assets map[string]apt.CachedAsset `cbor:"assets"`
}

// state remembers the previous poll and the inspected .deb assets.
type state struct {
	versions map[string][]string
	assets   *apt.AssetCache
}

// loadState reads path. A missing or unreadable file starts a fresh state.
func loadState(logger log.Logger, path string) *state {
	s := &state{versions: make(map[string][]string), assets: apt.NewAssetCache(nil)}
	if path == "" {
		return s
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s
	}
	if err != nil {
		level.Warn(logger).Log("msg", "could not read state, starting fresh", "path", path, "err", err)
		return s
	}
	f, err := decodeState(data)
	if err != nil {
		level.Warn(logger).Log("msg", "corrupt state, starting fresh", "path", path, "err", err)
		return s
	}
	if f.Versions != nil {
		s.versions = f.Versions
	}
	s.assets = apt.NewAssetCache(f.Assets)
	level.Debug(logger).Log("msg", "state loaded", "path", path, "resolvers", len(s.versions), "assets", len(f.Assets))
	return s
}

func decodeState(data []byte) (stateFile, error) {
	var f stateFile
	err := decMode.Unmarshal(data, &f)
	return f, err
}

func (s *state) encode() ([]byte, error) {
	return encMode.Marshal(stateFile{Versions: s.versions, Assets: s.assets.Snapshot()})
}

// save writes the state atomically.
func (s *state) save(path string) error {
	data, err := s.encode()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// update records successful results and returns the resolvers whose
// versions differ from the previous poll. A resolver seen for the first
// time is not reported as changed. Failed resolvers keep their last
// versions.
func (s *state) update(results []registry.Result) map[string]bool {
	changed := make(map[string]bool)
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		prev, seen := s.versions[res.Resolver]
		if seen && !slices.Equal(prev, res.Versions) {
			changed[res.Resolver] = true
		}
		s.versions[res.Resolver] = res.Versions
	}
	return changed
}
