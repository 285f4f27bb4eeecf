package performance

import (
	"fmt"
	"testing"
	"time"

	"github.com/fieldtrail/fieldtrail/pkg/diff"
	"github.com/fieldtrail/fieldtrail/pkg/schema"
	"github.com/fieldtrail/fieldtrail/pkg/serializer"
)

func benchSchema(b *testing.B) *schema.TrackedSchema {
	b.Helper()
	schemas := schema.NewRegistry(serializer.NewRegistry())
	s, err := schemas.Declare(schema.Declaration{
		Record:          "bench_orders",
		PrimaryKeyField: "id",
		Fields: []schema.Field{
			schema.FieldOf[string]("id"),
			schema.FieldOf[string]("status"),
			schema.FieldOf[int64]("amount_cents"),
			schema.FieldOf[float64]("discount"),
			schema.FieldOf[bool]("paid"),
			schema.FieldOf[time.Time]("due_at"),
		},
		Tracked: []string{"status", "amount_cents", "discount", "paid", "due_at"},
	})
	if err != nil {
		b.Fatalf("Failed to declare schema: %v", err)
	}
	return s
}

// BenchmarkComputeChangesUpdate benchmarks the diff over a typical
// commit batch where every record changed two of five tracked fields.
func BenchmarkComputeChangesUpdate(b *testing.B) {
	sch := benchSchema(b)
	eng := diff.NewEngine(serializer.NewRegistry())
	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	records := make([]diff.DirtyRecord, 50)
	for i := range records {
		key := fmt.Sprintf("order-%d", i)
		records[i] = diff.DirtyRecord{
			Schema: sch,
			State:  diff.StateUpdated,
			Fields: map[string]diff.FieldDelta{
				"id":           {Previous: key, Pending: key},
				"status":       {Previous: "open", Pending: "paid"},
				"amount_cents": {Previous: int64(1000), Pending: int64(1000)},
				"discount":     {Previous: 0.1, Pending: 0.1},
				"paid":         {Previous: false, Pending: true},
				"due_at":       {Previous: due, Pending: due},
			},
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		changes, err := eng.ComputeChanges(records)
		if err != nil {
			b.Fatalf("ComputeChanges failed: %v", err)
		}
		if len(changes) != 100 {
			b.Fatalf("Expected 100 changes, got %d", len(changes))
		}
	}
}

// BenchmarkComputeChangesCreation benchmarks the all-fields case.
func BenchmarkComputeChangesCreation(b *testing.B) {
	sch := benchSchema(b)
	eng := diff.NewEngine(serializer.NewRegistry())
	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	records := make([]diff.DirtyRecord, 50)
	for i := range records {
		records[i] = diff.DirtyRecord{
			Schema: sch,
			State:  diff.StateCreated,
			Fields: map[string]diff.FieldDelta{
				"id":           {Pending: fmt.Sprintf("order-%d", i)},
				"status":       {Pending: "open"},
				"amount_cents": {Pending: int64(1000)},
				"discount":     {Pending: 0.1},
				"paid":         {Pending: false},
				"due_at":       {Pending: due},
			},
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		changes, err := eng.ComputeChanges(records)
		if err != nil {
			b.Fatalf("ComputeChanges failed: %v", err)
		}
		if len(changes) != 250 {
			b.Fatalf("Expected 250 changes, got %d", len(changes))
		}
	}
}

// BenchmarkSerializeTime benchmarks the hottest builtin handler.
func BenchmarkSerializeTime(b *testing.B) {
	reg := serializer.NewRegistry()
	at := time.Date(2024, 6, 1, 12, 30, 0, 123456789, time.UTC)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := reg.Serialize(at); err != nil {
			b.Fatalf("Serialize failed: %v", err)
		}
	}
}
