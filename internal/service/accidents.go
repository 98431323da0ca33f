// Package service runs the accident queries against the store and shapes the
// raw documents into the JSON rows served by the API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"github.com/120m4n/infovis/internal/logging"
	"github.com/120m4n/infovis/internal/query"
	"github.com/120m4n/infovis/internal/storage"
	"github.com/120m4n/infovis/model"
)

// ErrNotFound is returned when a single record lookup has no match.
var ErrNotFound = storage.ErrNotFound

// NullID replaces a missing group key.
const NullID = "null"

// Store is the subset of storage.Mongo the service needs.
type Store interface {
	Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline) ([]bson.M, error)
	Find(ctx context.Context, collection string, filter, projection bson.D) ([]bson.M, error)
	FindOne(ctx context.Context, collection string, filter bson.D) (bson.M, error)
	Count(ctx context.Context, collection string, filter bson.D) (int64, error)
}

// Service answers the dashboard queries.
type Service struct {
	store     Store
	accidents string
	districts string
}

// New creates a service reading accidents and districts from the named
// collections.
func New(store Store, accidentsCollection, districtsCollection string) *Service {
	return &Service{
		store:     store,
		accidents: accidentsCollection,
		districts: districtsCollection,
	}
}

func (s *Service) aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline) ([]bson.M, error) {
	logging.Debug().
		Str("collection", collection).
		Strs("stages", query.StageNames(pipeline)).
		Msg("Running aggregation")
	return s.store.Aggregate(ctx, collection, pipeline)
}

// Count groups accidents by field, most frequent first. limit <= 0 returns
// every group.
func (s *Service) Count(ctx context.Context, field string, limit int) ([]model.FieldCount, error) {
	rows, err := s.aggregate(ctx, s.accidents, query.CountByField(field, limit))
	if err != nil {
		return nil, err
	}
	counts := make([]model.FieldCount, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, model.FieldCount{
			ID:    groupID(row["_id"]),
			Count: toInt64(row["count"]),
		})
	}
	return counts, nil
}

// CountWithHighlight reports, for every group of the base count, how many
// members match hField == hValue (highlight) and how many do not (count).
// The two aggregations are independent reads and run concurrently.
func (s *Service) CountWithHighlight(ctx context.Context, field string, limit int, hField, hValue string, descending bool) ([]model.HighlightCount, error) {
	var base, highlighted []bson.M

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		base, err = s.aggregate(gctx, s.accidents, query.GroupCount(query.GroupOptions{
			Field:      field,
			Limit:      limit,
			Descending: descending,
		}))
		return err
	})
	if match := query.HighlightMatch(hField, hValue); match != nil {
		g.Go(func() error {
			var err error
			highlighted, err = s.aggregate(gctx, s.accidents, query.GroupCount(query.GroupOptions{
				Field:      field,
				Match:      match,
				Descending: descending,
			}))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hits := make(map[string]int64, len(highlighted))
	for _, row := range highlighted {
		hits[groupKey(row["_id"])] += toInt64(row["count"])
	}

	// Groups whose keys differ only by type ("3" and 3) are merged into the
	// first one seen.
	totals := make([]int64, 0, len(base))
	index := make(map[string]int, len(base))
	keys := make([]string, 0, len(base))
	ids := make([]interface{}, 0, len(base))
	for _, row := range base {
		key := groupKey(row["_id"])
		if i, ok := index[key]; ok {
			totals[i] += toInt64(row["count"])
			continue
		}
		index[key] = len(keys)
		keys = append(keys, key)
		ids = append(ids, groupID(row["_id"]))
		totals = append(totals, toInt64(row["count"]))
	}

	out := make([]model.HighlightCount, 0, len(keys))
	for i, key := range keys {
		h := hits[key]
		if h > totals[i] {
			h = totals[i]
		}
		out = append(out, model.HighlightCount{
			ID:        ids[i],
			Count:     totals[i] - h,
			Highlight: h,
		})
	}
	return out, nil
}

// Totals counts accidents, vehicles, persons and distinct streets.
func (s *Service) Totals(ctx context.Context) (model.Totals, error) {
	var totals model.Totals

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.Count(gctx, s.accidents, bson.D{})
		totals.Incidenti = n
		return err
	})
	g.Go(func() error {
		n, err := s.subListCount(gctx, query.FieldVehicles)
		totals.Veicoli = n
		return err
	})
	g.Go(func() error {
		n, err := s.subListCount(gctx, query.FieldPersons)
		totals.Persone = n
		return err
	})
	g.Go(func() error {
		streets, err := s.Count(gctx, query.FieldStreet, 0)
		totals.Strade = int64(len(streets))
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Totals{}, err
	}
	return totals, nil
}

func (s *Service) subListCount(ctx context.Context, list string) (int64, error) {
	rows, err := s.aggregate(ctx, s.accidents, query.SubListCount(list))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toInt64(rows[0]["count"]), nil
}

// Districts returns every district with its number rendered as a string.
func (s *Service) Districts(ctx context.Context) ([]model.District, error) {
	docs, err := s.store.Find(ctx, s.districts, bson.D{}, nil)
	if err != nil {
		return nil, err
	}
	out := make([]model.District, 0, len(docs))
	for _, d := range docs {
		out = append(out, model.District{
			Coord:       toString(d["coord"]),
			Name:        toString(d["name"]),
			Numero:      toString(d["numero"]),
			Description: toString(d["description"]),
		})
	}
	return out, nil
}

// AccidentDetail returns the whole record "incidente<id>" or ErrNotFound.
func (s *Service) AccidentDetail(ctx context.Context, id int) (bson.M, error) {
	doc, err := s.store.FindOne(ctx, s.accidents, query.AccidentByID(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GeocodedAccidents returns the map markers of the accidents matching f.
// Records without a latitude are skipped.
func (s *Service) GeocodedAccidents(ctx context.Context, f query.AccidentFilter) ([]model.GeocodedAccident, error) {
	docs, err := s.store.Find(ctx, s.accidents, query.GeocodedFilter(f), query.GeocodedProjection())
	if err != nil {
		return nil, err
	}
	out := make([]model.GeocodedAccident, 0, len(docs))
	for _, d := range docs {
		if d[query.FieldLat] == nil {
			continue
		}
		out = append(out, model.GeocodedAccident{
			Lat:          toString(d[query.FieldLat]),
			Lon:          toString(d[query.FieldLon]),
			Anno:         toString(d[query.FieldYear]),
			NumeroGruppo: toString(d[query.FieldDistrict]),
			Ora:          toString(d[query.FieldHour]),
			Protocollo:   strings.ReplaceAll(toString(d[query.FieldID]), query.IDPrefix, ""),
		})
	}
	return out, nil
}

// DistrictsAccidents counts the accidents matching f per district. Totale is
// the size of the filtered set, repeated on every row.
func (s *Service) DistrictsAccidents(ctx context.Context, f query.AccidentFilter) ([]model.DistrictAccidents, error) {
	var (
		total int64
		rows  []bson.M
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.store.Count(gctx, s.accidents, f.Match())
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = s.aggregate(gctx, s.accidents, query.DistrictsAccidents(f))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.DistrictAccidents, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.DistrictAccidents{
			Municipio: normalizeNumber(row["_id"]),
			Incidenti: toInt64(row["count"]),
			Totale:    total,
		})
	}
	return out, nil
}

// AccidentsByDay counts accidents per calendar day, oldest first.
func (s *Service) AccidentsByDay(ctx context.Context) ([]model.DailyCount, error) {
	rows, err := s.aggregate(ctx, s.accidents, query.AccidentsByDay())
	if err != nil {
		return nil, err
	}

	type day struct {
		parts [3]string
		count int64
	}
	days := make([]day, 0, len(rows))
	for _, row := range rows {
		id := asMap(row["_id"])
		days = append(days, day{
			parts: [3]string{toString(id[query.FieldYear]), toString(id[query.FieldMonth]), toString(id[query.FieldDay])},
			count: toInt64(row["count"]),
		})
	}
	sort.SliceStable(days, func(i, j int) bool {
		for k := 0; k < 3; k++ {
			if c := compareDatePart(days[i].parts[k], days[j].parts[k]); c != 0 {
				return c < 0
			}
		}
		return false
	})

	out := make([]model.DailyCount, 0, len(days))
	for _, d := range days {
		out = append(out, model.DailyCount{
			Data:  fmt.Sprintf("%s-%s-%s", d.parts[0], d.parts[1], d.parts[2]),
			Count: d.count,
		})
	}
	return out, nil
}

// compareDatePart orders numerically when both parts are numbers, so that
// month "10" sorts after month "9".
func compareDatePart(a, b string) int {
	ai, errA := strconv.Atoi(a)
	bi, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}
