// Command audit-query prints change log entries for a record from the
// command line.
//
// Usage:
//
//	audit-query -table Customer -resource 42 [-resource 43] \
//	    [-field email] [-user admin-7] \
//	    [-since 2024-01-01T00:00:00Z] [-until 2024-02-01T00:00:00Z] \
//	    [-limit 100] [-offset 0]
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/fieldtrail/fieldtrail/pkg/config"
	"github.com/fieldtrail/fieldtrail/pkg/retriever"
	"github.com/fieldtrail/fieldtrail/pkg/serializer"
)

// stringList collects a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	var (
		dsn       string
		table     string
		resources stringList
		fields    stringList
		users     stringList
		since     string
		until     string
		limit     int
		offset    int
		logLevel  string
	)

	flag.StringVar(&dsn, "db", os.Getenv("FIELDTRAIL_DATABASE_URL"), "Database connection string")
	flag.StringVar(&table, "table", "", "Table label to query (required)")
	flag.Var(&resources, "resource", "Resource id to include (repeatable, at least one required)")
	flag.Var(&fields, "field", "Restrict to a field name (repeatable)")
	flag.Var(&users, "user", "Restrict to an acting user (repeatable)")
	flag.StringVar(&since, "since", "", "Inclusive lower timestamp bound (RFC 3339)")
	flag.StringVar(&until, "until", "", "Inclusive upper timestamp bound (RFC 3339)")
	flag.IntVar(&limit, "limit", 0, "Maximum number of entries (0 = no limit)")
	flag.IntVar(&offset, "offset", 0, "Number of entries to skip")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(logLevel)

	if table == "" {
		logger.Fatal("-table is required")
	}
	if len(resources) == 0 {
		logger.Fatal("at least one -resource is required")
	}
	if dsn == "" {
		// Fall back to the full config chain so FIELDTRAIL_CONFIG works
		// here too.
		cfg, err := config.LoadConfig()
		if err != nil {
			logger.Fatalf("Failed to load config: %v", err)
		}
		dsn = cfg.DatabaseURL
	}

	q := retriever.Query{
		Table:       table,
		ResourceIDs: resources,
		Fields:      fields,
		UserIDs:     users,
		Limit:       limit,
		Offset:      offset,
	}
	var err error
	if q.Since, err = parseTimeFlag(since); err != nil {
		logger.Fatalf("Invalid -since: %v", err)
	}
	if q.Until, err = parseTimeFlag(until); err != nil {
		logger.Fatalf("Invalid -until: %v", err)
	}

	db, err := connectDatabase(dsn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	r := retriever.New(db, serializer.Default())
	entries, err := r.Query(context.Background(), q)
	if err != nil {
		logger.Fatalf("Query failed: %v", err)
	}

	for _, e := range entries {
		printEntry(e)
	}
	logger.Debugf("Printed %d entries", len(entries))
}

func printEntry(e retriever.Entry) {
	actor := e.ChangedBy
	if actor == "" {
		actor = "-"
	}
	if e.ImpersonatedBy != "" {
		actor = fmt.Sprintf("%s (as %s)", e.ImpersonatedBy, e.ChangedBy)
	}

	fmt.Printf("%s  %s[%s].%s  %s -> %s  by %s",
		e.ChangedAt.Format(time.RFC3339),
		e.Table, e.ResourceID, e.Field,
		formatValue(e.Old, e.OldStored), formatValue(e.New, e.NewStored),
		actor,
	)
	if e.Reason != "" {
		fmt.Printf("  (%s)", e.Reason)
	}
	if e.DecodeErr != nil {
		fmt.Printf("  [decode error: %v]", e.DecodeErr)
	}
	fmt.Println()
}

// formatValue prefers the typed value, falls back to the raw stored
// form, and prints absent endpoints as ∅.
func formatValue(v any, stored *string) string {
	if v != nil {
		return fmt.Sprintf("%v", v)
	}
	if stored != nil {
		return *stored
	}
	return "∅"
}

func parseTimeFlag(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func connectDatabase(connectionString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return db, nil
}
