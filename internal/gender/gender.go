// Package gender guesses a person's gender from the ending of their first name.
//
// The heuristic is intentionally crude (Spanish names ending in "a" are usually
// feminine, "o" masculine) and is only used when the record carries no sex value.
package gender

import "strings"

type Gender string

const (
	Femenino    Gender = "femenino"
	Masculino   Gender = "masculino"
	Desconocido Gender = "desconocido"
)

func (g Gender) String() string { return string(g) }

// Infer returns the guess for a full or first name.
func Infer(name string) Gender {
	cleaned := strings.ToLower(strings.TrimSpace(name))
	fields := strings.Fields(cleaned)
	if len(fields) == 0 {
		return Desconocido
	}
	first := fields[0]
	switch {
	case strings.HasSuffix(first, "a"):
		return Femenino
	case strings.HasSuffix(first, "o"):
		return Masculino
	default:
		return Desconocido
	}
}

// FromValue is Infer for loosely typed input (scanned columns, decoded JSON).
// Anything that is not a string yields Desconocido.
func FromValue(v any) Gender {
	switch x := v.(type) {
	case string:
		return Infer(x)
	case *string:
		if x == nil {
			return Desconocido
		}
		return Infer(*x)
	default:
		return Desconocido
	}
}
