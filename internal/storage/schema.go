package storage

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// identRe accepts plain or dotted identifiers (schema.table). Identifiers are
// interpolated into SQL text, so nothing else is allowed through.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ValidIdentifier reports whether s is safe to interpolate as a table or column name.
func ValidIdentifier(s string) bool { return identRe.MatchString(s) }

// Schema describes the deployer's person table.
type Schema struct {
	Table   string  `yaml:"table"`
	Columns Columns `yaml:"columns"`

	// Filters overrides the column an attribute filters on.
	// Attributes left out fall back to DefaultFilters.
	Filters map[string]string `yaml:"filters,omitempty"`
}

// Columns maps every projected field to a column of Schema.Table.
type Columns struct {
	Dui              string `yaml:"dui"`
	NombreCompleto   string `yaml:"nombre_completo"`
	Sexo             string `yaml:"sexo"`
	Profesion        string `yaml:"profesion"`
	Telefono         string `yaml:"telefono"`
	Correo           string `yaml:"correo"`
	Direccion        string `yaml:"direccion"`
	Calle            string `yaml:"calle"`
	Ciudad           string `yaml:"ciudad"`
	NombrePadre      string `yaml:"nombre_padre"`
	NombreMadre      string `yaml:"nombre_madre"`
	NombreConyuge    string `yaml:"nombre_conyuge"`
	Placa            string `yaml:"placa"`
	Marca            string `yaml:"marca"`
	Modelo           string `yaml:"modelo"`
	Anio             string `yaml:"anio"`
	NombreEmpresa    string `yaml:"nombre_empresa"`
	Salario          string `yaml:"salario"`
	DireccionLaboral string `yaml:"direccion_laboral"`
	FechaNacimiento  string `yaml:"fecha_nacimiento"`
}

type namedColumn struct {
	key   string // yaml key, used in error messages
	alias string // projection alias
	col   string
}

// projection returns the projected columns in SELECT order (age is appended separately).
func (c Columns) projection() []namedColumn {
	return []namedColumn{
		{"dui", "Dui", c.Dui},
		{"nombre_completo", "NombreCompleto", c.NombreCompleto},
		{"sexo", "Sexo", c.Sexo},
		{"profesion", "Profesion", c.Profesion},
		{"telefono", "Telefono", c.Telefono},
		{"correo", "Correo", c.Correo},
		{"direccion", "Direccion", c.Direccion},
		{"calle", "Calle", c.Calle},
		{"ciudad", "Ciudad", c.Ciudad},
		{"nombre_padre", "NombrePadre", c.NombrePadre},
		{"nombre_madre", "NombreMadre", c.NombreMadre},
		{"nombre_conyuge", "NombreConyugue", c.NombreConyuge},
		{"placa", "Placa", c.Placa},
		{"marca", "Marca", c.Marca},
		{"modelo", "Modelo", c.Modelo},
		{"anio", "Anio", c.Anio},
		{"nombre_empresa", "NombreEmpresa", c.NombreEmpresa},
		{"salario", "Salario", c.Salario},
		{"direccion_laboral", "DireccionEmpleadoISSS", c.DireccionLaboral},
	}
}

// DefaultFilters maps each attribute to its natural column.
// nombres and apellidos both search the full name unless overridden.
func (c Columns) DefaultFilters() map[string]string {
	return map[string]string{
		AttrNombres:       c.NombreCompleto,
		AttrApellidos:     c.NombreCompleto,
		AttrDUI:           c.Dui,
		AttrTelefono:      c.Telefono,
		AttrCorreo:        c.Correo,
		AttrDireccion:     c.Direccion,
		AttrPlaca:         c.Placa,
		AttrNombreEmpresa: c.NombreEmpresa,
		AttrCalle:         c.Calle,
		AttrCiudad:        c.Ciudad,
		AttrSexo:          c.Sexo,
		AttrEdad:          c.FechaNacimiento,
	}
}

// FilterColumns resolves attribute -> column, applying overrides.
func (s Schema) FilterColumns() map[string]string {
	out := s.Columns.DefaultFilters()
	for k, v := range s.Filters {
		k = strings.TrimSpace(k)
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}
	return out
}

// Validate reports every missing or unsafe entry.
func (s Schema) Validate() error {
	var errs []error
	if !ValidIdentifier(s.Table) {
		errs = append(errs, fmt.Errorf("schema.table: invalid identifier %q", s.Table))
	}
	cols := append(s.Columns.projection(), namedColumn{key: "fecha_nacimiento", col: s.Columns.FechaNacimiento})
	for _, c := range cols {
		if strings.TrimSpace(c.col) == "" {
			errs = append(errs, fmt.Errorf("schema.columns.%s is required", c.key))
			continue
		}
		if !ValidIdentifier(c.col) {
			errs = append(errs, fmt.Errorf("schema.columns.%s: invalid identifier %q", c.key, c.col))
		}
	}

	keys := make([]string, 0, len(s.Filters))
	for k := range s.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !IsAttribute(strings.TrimSpace(k)) {
			errs = append(errs, fmt.Errorf("schema.filters: unknown attribute %q", k))
			continue
		}
		if v := strings.TrimSpace(s.Filters[k]); v != "" && !ValidIdentifier(v) {
			errs = append(errs, fmt.Errorf("schema.filters.%s: invalid identifier %q", k, v))
		}
	}
	return errors.Join(errs...)
}
