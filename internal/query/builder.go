// Package query builds the MongoDB aggregation pipelines and filters behind
// every endpoint. Nothing here performs I/O.
package query

import (
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	// DefaultField is grouped on when no field is requested.
	DefaultField = "anno"

	// groupAlias is the projected name of the grouped field.
	groupAlias = "field"

	// IDPrefix prefixes every accident identifier.
	IDPrefix = "incidente"
)

// Accident document fields.
const (
	FieldYear     = "anno"
	FieldMonth    = "mese"
	FieldDay      = "giorno"
	FieldHour     = "ora"
	FieldDistrict = "numero_gruppo"
	FieldLat      = "lat"
	FieldLon      = "lon"
	FieldID       = "incidente"
	FieldStreet   = "strada"
	FieldVehicles = "veicoli"
	FieldPersons  = "persone"
)

// NormalizeField returns DefaultField for an empty field.
func NormalizeField(field string) string {
	if strings.TrimSpace(field) == "" {
		return DefaultField
	}
	return field
}

// GroupOptions describes a count-by-field aggregation.
type GroupOptions struct {
	Field string
	// Match, when not empty, filters documents before grouping.
	Match bson.D
	// Limit <= 0 means unbounded.
	Limit      int
	Descending bool
}

// GroupCount projects the field, unwinds it when it is a dotted path (the
// value is then a list and every element counts), groups and counts, sorts by
// count and optionally limits.
func GroupCount(opts GroupOptions) mongo.Pipeline {
	field := NormalizeField(opts.Field)

	pipeline := mongo.Pipeline{}
	if len(opts.Match) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: opts.Match}})
	}
	pipeline = append(pipeline, bson.D{{Key: "$project", Value: bson.D{{Key: groupAlias, Value: "$" + field}}}})
	if strings.Contains(field, ".") {
		pipeline = append(pipeline, bson.D{{Key: "$unwind", Value: "$" + groupAlias}})
	}
	pipeline = append(pipeline,
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + groupAlias},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "count", Value: sortDirection(opts.Descending)}}}},
	)
	if opts.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: opts.Limit}})
	}
	return pipeline
}

// CountByField groups on field, most frequent first.
func CountByField(field string, limit int) mongo.Pipeline {
	return GroupCount(GroupOptions{Field: field, Limit: limit, Descending: true})
}

// HighlightMatch builds the filter selecting the highlighted subset, or nil
// when either part is empty. Integer-looking values also match documents that
// store the field as a number.
func HighlightMatch(field, value string) bson.D {
	if field == "" || value == "" {
		return nil
	}
	if n, err := strconv.Atoi(value); err == nil {
		return bson.D{{Key: field, Value: bson.D{{Key: "$in", Value: bson.A{value, n}}}}}
	}
	return bson.D{{Key: field, Value: value}}
}

// SubListCount counts the elements of a list field across all documents.
func SubListCount(list string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$unwind", Value: "$" + list}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
}

// AccidentFilter holds the optional equality filters accepted by the map
// endpoints. Empty strings and nil pointers mean "no filter".
type AccidentFilter struct {
	Year     string
	Month    string
	Day      string
	Hour     *int
	District *int
}

// Match returns the filter document; never nil.
func (f AccidentFilter) Match() bson.D {
	match := bson.D{}
	if f.Year != "" {
		match = append(match, bson.E{Key: FieldYear, Value: f.Year})
	}
	if f.Month != "" {
		match = append(match, bson.E{Key: FieldMonth, Value: f.Month})
	}
	if f.Day != "" {
		match = append(match, bson.E{Key: FieldDay, Value: f.Day})
	}
	// ora and numero_gruppo are stored as integers
	if f.Hour != nil {
		match = append(match, bson.E{Key: FieldHour, Value: *f.Hour})
	}
	if f.District != nil {
		match = append(match, bson.E{Key: FieldDistrict, Value: *f.District})
	}
	return match
}

// GeocodedFilter restricts f to records that can be drawn on a map.
func GeocodedFilter(f AccidentFilter) bson.D {
	return append(f.Match(), bson.E{Key: FieldLat, Value: bson.D{{Key: "$ne", Value: nil}}})
}

// GeocodedProjection lists the fields a map marker needs.
func GeocodedProjection() bson.D {
	return bson.D{
		{Key: "_id", Value: 0},
		{Key: FieldLat, Value: 1},
		{Key: FieldLon, Value: 1},
		{Key: FieldYear, Value: 1},
		{Key: FieldDistrict, Value: 1},
		{Key: FieldHour, Value: 1},
		{Key: FieldID, Value: 1},
	}
}

// DistrictsAccidents counts the filtered accidents per district.
func DistrictsAccidents(f AccidentFilter) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: f.Match()}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + FieldDistrict},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}

// AccidentsByDay counts accidents per (anno, mese, giorno).
func AccidentsByDay() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: FieldYear, Value: "$" + FieldYear},
				{Key: FieldMonth, Value: "$" + FieldMonth},
				{Key: FieldDay, Value: "$" + FieldDay},
			}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
}

// AccidentByID matches the record "incidente<id>".
func AccidentByID(id int) bson.D {
	return bson.D{{Key: FieldID, Value: IDPrefix + strconv.Itoa(id)}}
}

// StageNames lists the operator of every stage, e.g. [$project $group $sort].
func StageNames(pipeline mongo.Pipeline) []string {
	names := make([]string, 0, len(pipeline))
	for _, stage := range pipeline {
		if len(stage) > 0 {
			names = append(names, stage[0].Key)
		}
	}
	return names
}

func sortDirection(descending bool) int {
	if descending {
		return -1
	}
	return 1
}
