package oledb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultDriver is the database/sql driver registered by github.com/mattn/go-adodb.
	DefaultDriver = "adodb"

	// DefaultDSN is the Jet OLE DB connection string; %s is the database file.
	DefaultDSN = "Provider=Microsoft.Jet.OLEDB.4.0;Data Source=%s;Persist Security Info=True"

	// DefaultQuery selects the stored pictures.
	DefaultQuery = "SELECT * FROM OLE WHERE idOle > 10"

	DefaultIDColumn   = "idOle"
	DefaultBlobColumn = "object"
)

var (
	// ErrMissingColumn is returned when the result set lacks the id or blob column.
	ErrMissingColumn = errors.New("column not found in result set")

	// ErrDuplicateID is returned when two rows share an id.
	ErrDuplicateID = errors.New("duplicate image id")
)

// Extractor reads OLE picture fields from an Access database.
type Extractor struct {
	db         *sql.DB
	idColumn   string
	blobColumn string
}

// DSN fills the database path into a connection string template. A template
// without a %s verb is returned unchanged.
func DSN(template, path string) string {
	if template == "" {
		template = DefaultDSN
	}
	if !strings.Contains(template, "%s") {
		return template
	}
	return fmt.Sprintf(template, path)
}

// Open connects to a database through the named database/sql driver.
// Empty column names select the defaults.
func Open(driver, dsn, idColumn, blobColumn string) (*Extractor, error) {
	if driver == "" {
		driver = DefaultDriver
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	return New(db, idColumn, blobColumn), nil
}

// New wraps an existing connection. Empty column names select the defaults.
func New(db *sql.DB, idColumn, blobColumn string) *Extractor {
	if idColumn == "" {
		idColumn = DefaultIDColumn
	}
	if blobColumn == "" {
		blobColumn = DefaultBlobColumn
	}
	return &Extractor{db: db, idColumn: idColumn, blobColumn: blobColumn}
}

// Close closes the underlying connection.
func (e *Extractor) Close() error {
	return e.db.Close()
}

// OleImages runs query and returns the blob column keyed by the id column.
// Column names match case-insensitively. The blobs are returned as stored;
// use ole.UnwrapImage to get at the picture.
func (e *Extractor) OleImages(ctx context.Context, query string) (map[int][]byte, error) {
	if query == "" {
		query = DefaultQuery
	}

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	idIdx, blobIdx := -1, -1
	for i, c := range cols {
		switch {
		case strings.EqualFold(c, e.idColumn):
			idIdx = i
		case strings.EqualFold(c, e.blobColumn):
			blobIdx = i
		}
	}
	if idIdx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, e.idColumn)
	}
	if blobIdx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, e.blobColumn)
	}

	images := make(map[int][]byte)
	values := make([]interface{}, len(cols))
	dest := make([]interface{}, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		id, err := toInt(values[idIdx])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", e.idColumn, err)
		}
		if _, exists := images[id]; exists {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, id)
		}

		blob, err := toBytes(values[blobIdx])
		if err != nil {
			return nil, fmt.Errorf("column %s, id %d: %w", e.blobColumn, id, err)
		}
		images[id] = blob
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return images, nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case int:
		return n, nil
	case float64:
		return int(n), nil
	case []byte:
		return strconv.Atoi(strings.TrimSpace(string(n)))
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	case nil:
		return 0, errors.New("null id")
	default:
		return 0, fmt.Errorf("unsupported id type %T", v)
	}
}

func toBytes(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return append([]byte(nil), b...), nil
	case string:
		return []byte(b), nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported blob type %T", v)
	}
}
