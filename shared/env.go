package shared

import (
	"fmt"
	"os"
	"strconv"
)

// GetenvParser converts the raw value of an environment variable.
type GetenvParser[T any] func(raw string) (T, error)

func GetenvString(raw string) (string, error) {
	return raw, nil
}

func GetenvInt(raw string) (int, error) {
	return strconv.Atoi(raw)
}

func GetenvBool(raw string) (bool, error) {
	return strconv.ParseBool(raw)
}

// Getenv reads and parses an environment variable. When the variable
// is unset: required keys produce an error, optional keys fall back to
// the given default.
func Getenv[T any](parse GetenvParser[T], key string, required bool, fallback T) (T, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		if required {
			var zero T
			return zero, fmt.Errorf("required environment variable %s is not set", key)
		}
		return fallback, nil
	}
	v, err := parse(raw)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("parsing environment variable %s: %w", key, err)
	}
	return v, nil
}

// MustGetenv is Getenv for call sites where a parse failure is a
// programming error.
func MustGetenv[T any](parse GetenvParser[T], key string, required bool, fallback T) T {
	v, err := Getenv(parse, key, required, fallback)
	if err != nil {
		panic(err)
	}
	return v
}
