package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log"
	"os"
	"runtime"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/synoptiq/go-morph"
)

// --- 1. Define the Dependency Interface ---

type User struct {
	ID    int
	Email string
}

type UserRepository interface {
	GetUserByID(ctx context.Context, id int) (*User, error)
}

// --- 2. Define the Records and Schemas ---

// UserEvent is the raw record pulled from an event feed.
type UserEvent struct {
	UserID int
	Action string
	At     time.Time
}

// EnrichedEvent is the output record with the user resolved from the database.
type EnrichedEvent struct {
	UserID int
	Email  string
	Action string
	At     time.Time
}

// --- 3. Implement the Converter ---

// EnrichmentConverter resolves each event's user against the repository and
// emits one enriched record per event. Unknown users fail the record with a
// conversion error so the instrumented wrapper counts them as data failures.
type EnrichmentConverter struct {
	repo UserRepository
}

func NewEnrichmentConverter(repo UserRepository) *EnrichmentConverter {
	if repo == nil {
		panic("UserRepository cannot be nil")
	}
	return &EnrichmentConverter{repo: repo}
}

func (c *EnrichmentConverter) ConvertSchema(
	_ context.Context,
	inputSchema string,
	_ *morph.TaskContext,
) (string, error) {
	return inputSchema + "+user", nil
}

func (c *EnrichmentConverter) ConvertRecord(
	ctx context.Context,
	_ string,
	event UserEvent,
	_ *morph.TaskContext,
) (iter.Seq[EnrichedEvent], error) {
	user, err := c.repo.GetUserByID(ctx, event.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, morph.NewConversionError("enrichment",
				fmt.Errorf("user %d not found", event.UserID))
		}
		return nil, fmt.Errorf("failed to get user %d: %w", event.UserID, err)
	}

	return morph.Records(EnrichedEvent{
		UserID: user.ID,
		Email:  user.Email,
		Action: event.Action,
		At:     event.At,
	}), nil
}

var _ morph.Converter[string, string, UserEvent, EnrichedEvent] = (*EnrichmentConverter)(nil)

// --- 4. Concrete Dependency Implementation (SQLite) ---

type SQLiteUserRepository struct {
	db *sql.DB
}

func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	if db == nil {
		panic("sql.DB cannot be nil")
	}
	return &SQLiteUserRepository{db: db}
}

func (r *SQLiteUserRepository) GetUserByID(ctx context.Context, id int) (*User, error) {
	query := "SELECT id, email FROM users WHERE id = ?"
	row := r.db.QueryRowContext(ctx, query, id)

	var user User
	err := row.Scan(&user.ID, &user.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("query user %d failed: %w", id, err)
	}
	return &user, nil
}

// --- Database Setup Helper ---

const dbFile = "./morph_enrichment_example.db"

func setupDatabase(ctx context.Context) (*sql.DB, error) {
	_ = os.Remove(dbFile)
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createTableSQL := `
	CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		email TEXT NOT NULL UNIQUE
	);`
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create users table: %w", err)
	}

	insertSQL := "INSERT INTO users (id, email) VALUES (?, ?)"
	usersToInsert := []User{
		{ID: 1, Email: "alice@example.com"},
		{ID: 2, Email: "bob@example.com"},
		{ID: 4, Email: "charlie@example.com"},
		{ID: 5, Email: "dave@example.com"},
	}
	for _, user := range usersToInsert {
		if _, err := db.ExecContext(ctx, insertSQL, user.ID, user.Email); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to insert user %d: %w", user.ID, err)
		}
	}

	fmt.Println("✅ SQLite database initialized.")
	return db, nil
}

// --- 5. Example Usage ---

func main() {
	fmt.Println("🚀 Morph Instrumented Enrichment Example (with SQLite)")
	fmt.Println("======================================================")

	ctx := context.Background()

	// --- Setup Real Database ---
	db, err := setupDatabase(ctx)
	if err != nil {
		log.Fatalf("Database setup failed: %v", err)
	}
	defer db.Close()
	defer os.Remove(dbFile)

	// --- Create the Converter with its Dependency ---
	userRepo := NewSQLiteUserRepository(db)
	enricher := NewEnrichmentConverter(userRepo)

	// --- Wrap it with Instrumentation ---
	// The registry keeps instrument readings in memory so we can print them
	// at the end. Swap in a Prometheus or InfluxDB provider for production.
	registry := morph.NewRegistry()
	instrumented := morph.NewInstrumentedConverter(enricher,
		morph.WithConverterName[string, string, UserEvent, EnrichedEvent]("user_enrichment"),
		morph.WithMetricsProvider[string, string, UserEvent, EnrichedEvent](registry),
	)

	task := morph.NewTaskContext("enrichment-example")
	if err := instrumented.Init(ctx, task); err != nil {
		log.Fatalf("Converter init failed: %v", err)
	}
	defer instrumented.Close(ctx)

	outputSchema, err := instrumented.ConvertSchema(ctx, "user_event/v1", task)
	if err != nil {
		log.Fatalf("Schema conversion failed: %v", err)
	}
	fmt.Printf("\nOutput schema: %s\n", outputSchema)

	// --- Convert a Batch of Events ---
	events := []UserEvent{
		{UserID: 1, Action: "login", At: time.Now()},
		{UserID: 2, Action: "purchase", At: time.Now()},
		{UserID: 4, Action: "logout", At: time.Now()},
		{UserID: 5, Action: "login", At: time.Now()},
	}

	concurrency := runtime.NumCPU()
	fmt.Printf("\nConverting %d events concurrently (limit %d)...\n", len(events), concurrency)
	results, err := morph.ConvertBatch(ctx, instrumented, outputSchema, events, task, concurrency)
	if err != nil {
		log.Fatalf("Batch conversion failed: %v", err)
	}

	fmt.Println("\n✅ Enriched events:")
	for _, e := range results {
		fmt.Printf("  - User %d (%s): %s at %s\n", e.UserID, e.Email, e.Action, e.At.Format(time.RFC3339))
	}

	// --- Convert a Record that Fails ---
	fmt.Println("\nConverting an event for an unknown user...")
	_, err = instrumented.ConvertRecord(ctx, outputSchema, UserEvent{UserID: 99, Action: "login"}, task)
	if err != nil {
		fmt.Printf("  ❌ Conversion failed as expected: %v\n", err)
	}

	// --- Print Instrument Readings ---
	fmt.Println("\nInstrument readings:")
	taskID, scope := task.ID(), instrumented.Name()
	fmt.Printf("  records.in:      %d\n", registry.Counter(taskID, scope, morph.MetricRecordsIn).Count())
	fmt.Printf("  records.out:     %d\n", registry.Counter(taskID, scope, morph.MetricRecordsOut).Count())
	fmt.Printf("  records.failed:  %d\n", registry.Counter(taskID, scope, morph.MetricRecordsFailed).Count())
	timer := registry.Timer(taskID, scope, morph.MetricConversionTime)
	fmt.Printf("  conversion.time: %d samples, mean %v\n", timer.Count(), timer.Mean())
}
