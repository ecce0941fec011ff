package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrStore marks every failure coming from a backing database
// (connectivity, query, constraint). Callers match it with errors.Is.
var ErrStore = errors.New("store error")

// ErrAuditDisabled is returned by audit operations when no audit
// database was configured.
var ErrAuditDisabled = errors.New("audit database not configured")

func storeErr(db, op string, err error) error {
	return fmt.Errorf("%w: %s: %s: %w", ErrStore, db, op, err)
}

// Config configures one logical database.
//
// Driver values:
//   - "sqlserver" (default)
//   - "postgres"
//   - "sqlite": Database is the file path
type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // postgres only

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration // sqlite only; 0 means default
}

// Search attribute names accepted in Criteria.
const (
	AttrNombres       = "nombres"
	AttrApellidos     = "apellidos"
	AttrDUI           = "dui"
	AttrTelefono      = "telefono"
	AttrCorreo        = "correo"
	AttrDireccion     = "direccion"
	AttrPlaca         = "placa"
	AttrNombreEmpresa = "nombre_empresa"
	AttrCalle         = "calle"
	AttrCiudad        = "ciudad"
	AttrSexo          = "sexo"
	AttrEdad          = "edad"
)

// Attributes lists the recognized search attributes in the order their
// predicates are emitted.
var Attributes = []string{
	AttrNombres, AttrApellidos, AttrDUI, AttrTelefono, AttrCorreo, AttrDireccion,
	AttrPlaca, AttrNombreEmpresa, AttrCalle, AttrCiudad, AttrSexo, AttrEdad,
}

// IsAttribute reports whether name is a recognized search attribute.
func IsAttribute(name string) bool {
	for _, a := range Attributes {
		if a == name {
			return true
		}
	}
	return false
}

// Criteria maps attribute names to raw user values.
// Unknown keys and empty values are ignored by Search.
type Criteria map[string]string

// Person is one row of the search projection.
// JSON keys are stable; the web front end renders them directly.
type Person struct {
	Dui              *string `json:"Dui"`
	NombreCompleto   *string `json:"NombreCompleto"`
	Sexo             *string `json:"Sexo"`
	Profesion        *string `json:"Profesion"`
	Telefono         *string `json:"Telefono"`
	Correo           *string `json:"Correo"`
	Direccion        *string `json:"Direccion"`
	Calle            *string `json:"Calle"`
	Ciudad           *string `json:"Ciudad"`
	NombrePadre      *string `json:"NombrePadre"`
	NombreMadre      *string `json:"NombreMadre"`
	NombreConyuge    *string `json:"NombreConyugue"`
	Placa            *string `json:"Placa"`
	Marca            *string `json:"Marca"`
	Modelo           *string `json:"Modelo"`
	Anio             *string `json:"Año"`
	NombreEmpresa    *string `json:"NombreEmpresa"`
	Salario          *string `json:"Salario"`
	DireccionLaboral *string `json:"DireccionEmpleadoISSS"`
	Edad             *int64  `json:"Edad"`
}

// SearchLogEntry is one audit row. Timestamp and id are assigned by the database.
type SearchLogEntry struct {
	ChatID       int64
	Username     string
	SearchType   string
	SearchQuery  string
	ResultsFound int
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}
