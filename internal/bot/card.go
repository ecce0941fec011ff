package bot

import (
	"strconv"
	"strings"

	"padron/internal/search"
	"padron/pkg/tgui"
)

type cardField struct {
	label string
	value func(r search.Result) *string
}

var cardFields = []cardField{
	{"DUI", func(r search.Result) *string { return r.Dui }},
	{"Sexo", func(r search.Result) *string { return r.Sexo }},
	{"Profesión", func(r search.Result) *string { return r.Profesion }},
	{"Teléfono", func(r search.Result) *string { return r.Telefono }},
	{"Correo", func(r search.Result) *string { return r.Correo }},
	{"Dirección", func(r search.Result) *string { return r.Direccion }},
	{"Calle", func(r search.Result) *string { return r.Calle }},
	{"Ciudad", func(r search.Result) *string { return r.Ciudad }},
	{"Padre", func(r search.Result) *string { return r.NombrePadre }},
	{"Madre", func(r search.Result) *string { return r.NombreMadre }},
	{"Cónyuge", func(r search.Result) *string { return r.NombreConyuge }},
	{"Placa", func(r search.Result) *string { return r.Placa }},
	{"Marca", func(r search.Result) *string { return r.Marca }},
	{"Modelo", func(r search.Result) *string { return r.Modelo }},
	{"Año", func(r search.Result) *string { return r.Anio }},
	{"Empresa", func(r search.Result) *string { return r.NombreEmpresa }},
	{"Salario", func(r search.Result) *string { return r.Salario }},
	{"Dirección laboral", func(r search.Result) *string { return r.DireccionLaboral }},
}

// Card renders one result as an HTML block. Empty fields are omitted.
func Card(r search.Result) tgui.H {
	mb := tgui.New().Title("👤", tgui.FirstNonEmpty(deref(r.NombreCompleto), "Sin nombre"))
	for _, f := range cardFields {
		v := strings.TrimSpace(deref(f.value(r)))
		if v == "" {
			continue
		}
		if f.label == "DUI" {
			mb.RawLine(tgui.B("DUI:") + " " + tgui.Code(v))
			continue
		}
		mb.KV(f.label, v)
	}
	if r.Edad != nil {
		mb.KV("Edad", strconv.FormatInt(*r.Edad, 10)+" años")
	}
	return mb.HTML()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
