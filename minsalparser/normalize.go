package minsalparser

import (
	"strconv"
	"strings"

	"github.com/farmaturno/farmacias-api/minsalparser/entities"
)

// The large chains publish branches under slightly different names
// ("CRUZ VERDE", "FARMACIAS CRUZ VERDE S.A."), so detection is a
// case-insensitive substring check.
var chainMarkers = []string{"cruz verde", "salcobrand", "ahumada"}

// normalizeRecord maps one upstream item onto a Pharmacy. The feed has
// renamed its fields more than once, so every lookup carries the older
// spellings as fallbacks.
func normalizeRecord(raw rawRecord, esTurno bool, fetchDate string) entities.Pharmacy {
	fecha := firstString(raw, "fecha", "fecha_actualizacion")
	if fecha == "" {
		fecha = fetchDate
	}

	nombre := firstString(raw, "local_nombre", "nombre_local", "local")

	return entities.Pharmacy{
		LocalID:            firstString(raw, "local_id"),
		Nombre:             nombre,
		Direccion:          firstString(raw, "local_direccion", "direccion"),
		Comuna:             firstString(raw, "comuna", "comuna_nombre", "fk_comuna"),
		Localidad:          firstString(raw, "localidad_nombre", "localidad"),
		Region:             firstString(raw, "region", "fk_region"),
		Telefono:           firstString(raw, "local_telefono", "telefono"),
		Lat:                parseCoordinate(raw, "local_lat", "lat"),
		Lng:                parseCoordinate(raw, "local_lng", "lng"),
		HoraApertura:       cleanHour(firstString(raw, "funcionamiento_hora_apertura")),
		HoraCierre:         cleanHour(firstString(raw, "funcionamiento_hora_cierre")),
		DiaFuncionamiento:  firstString(raw, "funcionamiento_dia"),
		FechaActualizacion: fecha,
		EsTurno:            esTurno,
		EsCadena:           isChain(nombre),
	}
}

// firstString returns the first non-empty value among keys, coercing the
// numbers the upstream sometimes emits where strings are expected.
func firstString(raw rawRecord, keys ...string) string {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			// fk_region and friends arrive as bare numbers in some payloads.
			if v == float64(int64(v)) {
				return strconv.FormatInt(int64(v), 10)
			}
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// parseCoordinate tolerates the feed's habit of sending "", "0", or garbage
// where a coordinate should be. Anything unusable becomes 0, the same
// placeholder the upstream uses for missing values.
func parseCoordinate(raw rawRecord, keys ...string) float64 {
	s := firstString(raw, keys...)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// cleanHour strips decorations like "08:30 hrs." that show up in the feed.
func cleanHour(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, suffix := range []string{"hrs.", "hrs", "hr.", "hr"} {
		if strings.HasSuffix(lower, suffix) {
			s = strings.TrimSpace(s[:len(s)-len(suffix)])
			break
		}
	}
	return s
}

func isChain(nombre string) bool {
	lower := strings.ToLower(nombre)
	for _, marker := range chainMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
