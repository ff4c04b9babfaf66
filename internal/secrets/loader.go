// Package secrets resolves credentials from files, inline config or the environment.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrNotConfigured = errors.New("not configured")

// Origin tells where a secret was found.
type Origin string

const (
	OriginFile   Origin = "file"
	OriginInline Origin = "inline"
	OriginEnv    Origin = "env"
)

// Source lists the places a secret may come from, in order: File, Value, Env.
// A configured File is authoritative; Env is never consulted when it is set.
type Source struct {
	Name  string
	Value string
	File  string
	Env   string
}

var (
	readFile  = os.ReadFile
	lookupEnv = os.LookupEnv
)

func Load(src Source) (string, error) {
	secret, _, err := Resolve(src)
	return secret, err
}

// Resolve returns the trimmed secret and its origin.
func Resolve(src Source) (string, Origin, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	if path := strings.TrimSpace(src.File); path != "" {
		data, err := readFile(path)
		if err != nil {
			return "", "", fmt.Errorf("read %s from %q: %w", name, path, err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", "", fmt.Errorf("%s file %q is empty", name, path)
		}
		return secret, OriginFile, nil
	}

	if secret := strings.TrimSpace(src.Value); secret != "" {
		return secret, OriginInline, nil
	}

	if env := strings.TrimSpace(src.Env); env != "" {
		if value, ok := lookupEnv(env); ok {
			if secret := strings.TrimSpace(value); secret != "" {
				return secret, OriginEnv, nil
			}
		}
	}

	return "", "", fmt.Errorf("%s is %w", name, ErrNotConfigured)
}
