//go:build integration

package storage_test

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/120m4n/infovis/internal/query"
	"github.com/120m4n/infovis/internal/service"
	"github.com/120m4n/infovis/internal/storage"
)

// Usage:
//   go test -tags integration ./internal/storage/...

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

func startMongo(t *testing.T, ctx context.Context) storage.Options {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Skipping: could not create container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "27017/tcp")
	if err != nil {
		t.Fatalf("get mapped port: %v", err)
	}
	p, err := strconv.Atoi(port.Port())
	if err != nil {
		t.Fatalf("parse mapped port: %v", err)
	}

	return storage.Options{
		Host:                   host,
		Port:                   p,
		Database:               "infovis_test",
		ServerSelectionTimeout: 10 * time.Second,
	}
}

func seed(t *testing.T, ctx context.Context, opts storage.Options) {
	t.Helper()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://"+opts.Host+":"+strconv.Itoa(opts.Port)))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Disconnect(ctx) //nolint:errcheck

	db := client.Database(opts.Database)
	accidents := []interface{}{
		bson.M{"incidente": "incidente1", "anno": "2016", "mese": "1", "giorno": "5", "ora": 8, "numero_gruppo": 1, "lat": "41.9", "lon": "12.5", "strada": "via Appia",
			"veicoli": bson.A{bson.M{"tipo": "auto"}, bson.M{"tipo": "moto"}}, "persone": bson.A{bson.M{"sesso": "M"}}},
		bson.M{"incidente": "incidente2", "anno": "2016", "mese": "1", "giorno": "5", "ora": 18, "numero_gruppo": 2, "lat": nil, "strada": "via Appia",
			"veicoli": bson.A{bson.M{"tipo": "auto"}}, "persone": bson.A{bson.M{"sesso": "F"}, bson.M{"sesso": "M"}}},
		bson.M{"incidente": "incidente3", "anno": "2017", "mese": "10", "giorno": "1", "ora": 8, "numero_gruppo": 1, "lat": "41.8", "lon": "12.4", "strada": "via Tuscolana",
			"veicoli": bson.A{bson.M{"tipo": "bus"}}, "persone": bson.A{}},
	}
	if _, err := db.Collection("accidents").InsertMany(ctx, accidents); err != nil {
		t.Fatalf("seed accidents: %v", err)
	}
	districts := []interface{}{
		bson.M{"coord": "[]", "name": "Municipio I", "numero": 1, "description": "Centro"},
	}
	if _, err := db.Collection("municipi").InsertMany(ctx, districts); err != nil {
		t.Fatalf("seed districts: %v", err)
	}
}

func TestServiceAgainstMongo(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	skipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	opts := startMongo(t, ctx)
	seed(t, ctx, opts)

	store := storage.NewMongo(opts)
	defer store.Close(context.Background()) //nolint:errcheck
	svc := service.New(store, "accidents", "municipi")

	t.Run("totals", func(t *testing.T) {
		totals, err := svc.Totals(ctx)
		if err != nil {
			t.Fatalf("Totals: %v", err)
		}
		if totals.Incidenti != 3 || totals.Veicoli != 4 || totals.Persone != 3 || totals.Strade != 2 {
			t.Errorf("totals = %+v", totals)
		}
	})

	t.Run("highlight", func(t *testing.T) {
		rows, err := svc.CountWithHighlight(ctx, "ora", 20, "anno", "2016", true)
		if err != nil {
			t.Fatalf("CountWithHighlight: %v", err)
		}
		byHour := map[interface{}][2]int64{}
		for _, r := range rows {
			byHour[r.ID] = [2]int64{r.Count, r.Highlight}
		}
		if byHour[int64(8)] != [2]int64{1, 1} || byHour[int64(18)] != [2]int64{0, 1} {
			t.Errorf("rows = %+v", rows)
		}
	})

	t.Run("sub-list field", func(t *testing.T) {
		rows, err := svc.Count(ctx, "veicoli.tipo", 0)
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if len(rows) != 3 || rows[0].ID != "auto" || rows[0].Count != 2 {
			t.Errorf("rows = %+v", rows)
		}
	})

	t.Run("geocoded skips missing latitude", func(t *testing.T) {
		rows, err := svc.GeocodedAccidents(ctx, query.AccidentFilter{Year: "2016"})
		if err != nil {
			t.Fatalf("GeocodedAccidents: %v", err)
		}
		if len(rows) != 1 || rows[0].Protocollo != "1" {
			t.Errorf("rows = %+v", rows)
		}
	})

	t.Run("districts accidents", func(t *testing.T) {
		rows, err := svc.DistrictsAccidents(ctx, query.AccidentFilter{Year: "2016"})
		if err != nil {
			t.Fatalf("DistrictsAccidents: %v", err)
		}
		if len(rows) != 2 || rows[0].Totale != 2 || rows[0].Incidenti != 1 {
			t.Errorf("rows = %+v", rows)
		}
	})

	t.Run("daily", func(t *testing.T) {
		rows, err := svc.AccidentsByDay(ctx)
		if err != nil {
			t.Fatalf("AccidentsByDay: %v", err)
		}
		if len(rows) != 2 || rows[0].Data != "2016-1-5" || rows[0].Count != 2 || rows[1].Data != "2017-10-1" {
			t.Errorf("rows = %+v", rows)
		}
	})

	t.Run("detail", func(t *testing.T) {
		doc, err := svc.AccidentDetail(ctx, 3)
		if err != nil {
			t.Fatalf("AccidentDetail: %v", err)
		}
		if doc["strada"] != "via Tuscolana" {
			t.Errorf("doc = %v", doc)
		}
		if _, err := svc.AccidentDetail(ctx, 99); !errors.Is(err, service.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("districts", func(t *testing.T) {
		rows, err := svc.Districts(ctx)
		if err != nil {
			t.Fatalf("Districts: %v", err)
		}
		if len(rows) != 1 || rows[0].Numero != "1" {
			t.Errorf("rows = %+v", rows)
		}
	})

	t.Run("reconnect", func(t *testing.T) {
		if err := store.Reconnect(ctx); err != nil {
			t.Fatalf("Reconnect: %v", err)
		}
		if err := store.Disconnect(ctx); err != nil {
			t.Fatalf("Disconnect: %v", err)
		}
		if store.State() != storage.Disconnected {
			t.Fatalf("state = %v, want disconnected", store.State())
		}
		n, err := store.Count(ctx, "accidents", nil)
		if err != nil || n != 3 {
			t.Errorf("count after disconnect = %d, %v", n, err)
		}
		if store.State() != storage.Connected {
			t.Errorf("state = %v, want connected", store.State())
		}
	})
}
