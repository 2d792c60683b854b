package entities

// Pharmacy represents a single pharmacy record from the MINSAL dataset.
// Field names follow the upstream API so cached payloads stay readable
// next to the raw feed.
type Pharmacy struct {
	LocalID            string  `json:"local_id" db:"local_id"`
	Nombre             string  `json:"nombre" db:"nombre"`
	Direccion          string  `json:"direccion" db:"direccion"`
	Comuna             string  `json:"comuna" db:"comuna"`
	Localidad          string  `json:"localidad" db:"localidad"`
	Region             string  `json:"region" db:"region"`
	Telefono           string  `json:"telefono,omitempty" db:"telefono"`
	Lat                float64 `json:"lat" db:"lat"`
	Lng                float64 `json:"lng" db:"lng"`
	HoraApertura       string  `json:"hora_apertura" db:"hora_apertura"`
	HoraCierre         string  `json:"hora_cierre" db:"hora_cierre"`
	DiaFuncionamiento  string  `json:"dia_funcionamiento" db:"dia_funcionamiento"`
	FechaActualizacion string  `json:"fecha_actualizacion" db:"fecha_actualizacion"`
	EsTurno            bool    `json:"es_turno" db:"es_turno"`
	EsCadena           bool    `json:"es_cadena" db:"es_cadena"`
}

// HasCoordinates reports whether the record carries usable coordinates.
// The upstream feed uses 0.0 as a placeholder for missing values.
func (p *Pharmacy) HasCoordinates() bool {
	return p.Lat != 0 || p.Lng != 0
}
