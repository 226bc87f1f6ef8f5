// Package contracts binds the contracts of a chain to ABI-typed clients that
// read through a live transport handle.
//
// Building a client set does no I/O. Each Client packs a method call with the
// go-ethereum ABI codec, sends it as eth_call through the session's Caller and
// unpacks the return data.
package contracts

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

//go:embed abi/*.json
var embedded embed.FS

// ABISource resolves an ABI reference such as "staking.json" to its JSON blob.
type ABISource interface {
	Lookup(ref string) ([]byte, error)
}

type fsSource struct {
	fsys fs.FS
	root string
}

// Embedded returns the ABIs compiled into the binary.
func Embedded() ABISource {
	return fsSource{fsys: embedded, root: "abi"}
}

// Dir returns a source reading ABI files from dir.
func Dir(dir string) ABISource {
	return fsSource{fsys: os.DirFS(filepath.Clean(dir)), root: "."}
}

func (s fsSource) Lookup(ref string) ([]byte, error) {
	if ref == "" || path.Base(ref) != ref || ref == "." || ref == ".." {
		return nil, fmt.Errorf("invalid abi reference %q", ref)
	}
	return fs.ReadFile(s.fsys, path.Join(s.root, ref))
}

// Chain tries each source in order and returns the first hit.
func Chain(sources ...ABISource) ABISource {
	return chainSource(sources)
}

type chainSource []ABISource

func (c chainSource) Lookup(ref string) ([]byte, error) {
	var lastErr error = fmt.Errorf("abi %q: no sources", ref)
	for _, s := range c {
		data, err := s.Lookup(ref)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
