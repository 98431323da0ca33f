package model

// FieldCount is one group of a count-by-field aggregation.
type FieldCount struct {
	ID    interface{} `json:"_id"`
	Count int64       `json:"count"`
}

// HighlightCount splits a group count into the members matching the
// highlight condition and the remainder.
type HighlightCount struct {
	ID        interface{} `json:"_id"`
	Count     int64       `json:"count"`
	Highlight int64       `json:"highlight"`
}

type Totals struct {
	Incidenti int64 `json:"incidenti"`
	Veicoli   int64 `json:"veicoli"`
	Persone   int64 `json:"persone"`
	Strade    int64 `json:"strade"`
}

// District (municipio). Numero is a string for front-end compatibility.
type District struct {
	Coord       string `json:"coord"`
	Name        string `json:"name"`
	Numero      string `json:"numero"`
	Description string `json:"description"`
}

// GeocodedAccident is the map marker for one accident
type GeocodedAccident struct {
	Lat          string `json:"lat"`
	Lon          string `json:"lon"`
	Anno         string `json:"anno"`
	NumeroGruppo string `json:"numero_gruppo"`
	Ora          string `json:"ora"`
	Protocollo   string `json:"protocollo"`
}

type DistrictAccidents struct {
	Municipio interface{} `json:"municipio"`
	Incidenti int64       `json:"incidenti"`
	Totale    int64       `json:"totale"`
}

type DailyCount struct {
	Data  string `json:"data"`
	Count int64  `json:"count"`
}
