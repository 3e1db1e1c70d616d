// Package env builds the environment handed to managed processes: the ambient
// process environment overlaid with the values of a dotenv file.
package env

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"slices"
	"strings"

	"github.com/joho/godotenv"
)

// Overlay is an immutable environment mapping. The zero value is empty.
type Overlay struct {
	vars     map[string]string
	fromFile []string
}

// FromEnviron converts a list of KEY=VALUE strings, as returned by
// os.Environ, into an Overlay. Entries without '=' are ignored and later
// entries win.
func FromEnviron(environ []string) Overlay {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[k] = v
	}
	return Overlay{vars: vars}
}

// Load reads the dotenv file at path and overlays it on top of ambient.
// A missing file is not an error, the result then equals ambient.
func Load(path string, ambient []string) (Overlay, error) {
	base := FromEnviron(ambient)
	if path == "" {
		return base, nil
	}

	fileVars, err := godotenv.Read(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return base, nil
	case err != nil:
		return Overlay{}, fmt.Errorf("reading env file %s: %w", path, err)
	}

	return base.With(fileVars), nil
}

// With returns a copy of o with vars applied on top. o is not modified.
func (o Overlay) With(vars map[string]string) Overlay {
	merged := make(map[string]string, len(o.vars)+len(vars))
	maps.Copy(merged, o.vars)
	maps.Copy(merged, vars)

	fromFile := slices.Clone(o.fromFile)
	for k := range vars {
		if !slices.Contains(fromFile, k) {
			fromFile = append(fromFile, k)
		}
	}
	slices.Sort(fromFile)
	return Overlay{vars: merged, fromFile: fromFile}
}

// Lookup returns the value of key and whether it is present.
func (o Overlay) Lookup(key string) (string, bool) {
	v, ok := o.vars[key]
	return v, ok
}

// Len returns the number of variables.
func (o Overlay) Len() int {
	return len(o.vars)
}

// FileKeys returns the sorted names defined by the overlaid file(s).
func (o Overlay) FileKeys() []string {
	return slices.Clone(o.fromFile)
}

// Environ returns the overlay as sorted KEY=VALUE strings suitable for
// exec.Cmd.Env. Each call returns a fresh slice.
func (o Overlay) Environ() []string {
	keys := slices.Sorted(maps.Keys(o.vars))
	ret := make([]string, 0, len(keys))
	for _, k := range keys {
		ret = append(ret, k+"="+o.vars[k])
	}
	return ret
}
