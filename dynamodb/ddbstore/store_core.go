package ddbstore

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/acksell/ddbupdate/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// Store is a DynamoDB-compatible store backed by BadgerDB.
// It implements the subset of the DynamoDB API that update requests need,
// with the same write semantics: every write runs in one badger transaction.
type Store struct {
	db     *badger.DB
	tables map[string]*tableSchema
	log    *zap.Logger

	tokensMu sync.Mutex
	// tokens maps committed ClientRequestTokens to their request fingerprint.
	tokens   map[string]string
}

type tableSchema struct {
	definition table.TableDefinition
}

func (t *tableSchema) encodeKey(pk table.PrimaryKey) ([]byte, error) {
	return encodeBadgerKey(t.definition.Name, pk)
}

// StoreOptions configures the BadgerDB store.
type StoreOptions struct {
	// Path to the database directory. If empty, uses in-memory mode.
	Path string
	// InMemory forces in-memory mode even if Path is set.
	InMemory bool
	// Logger receives badger's own logs at debug level and store logs.
	// If nil, logging is disabled.
	Logger *zap.Logger
}

// New creates a new BadgerDB-backed DynamoDB store.
func New(opts StoreOptions, defs ...table.TableDefinition) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Path)

	if opts.Path == "" || opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
		badgerOpts = badgerOpts.WithLogger(nil)
	} else {
		badgerOpts = badgerOpts.WithLogger(badgerLogger{log.Named("badger").Sugar()})
	}

	tables := make(map[string]*tableSchema, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return nil, errors.New("table definition has no name")
		}
		if def.KeyDefinitions.PartitionKey.Name == "" {
			return nil, fmt.Errorf("table %q: partition key is required", def.Name)
		}
		if _, dup := tables[def.Name]; dup {
			return nil, fmt.Errorf("table %q defined twice", def.Name)
		}
		tables[def.Name] = &tableSchema{definition: def}
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	log.Debug("opened local store",
		zap.String("path", opts.Path),
		zap.Bool("inMemory", badgerOpts.InMemory),
		zap.Int("tables", len(tables)))

	return &Store{
		db:     db,
		tables: tables,
		log:    log,
		tokens: map[string]string{},
	}, nil
}

// Close closes the BadgerDB database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) getTable(tableName *string) (*tableSchema, error) {
	if tableName == nil {
		return nil, fmt.Errorf("table name is required")
	}
	schema, ok := s.tables[*tableName]
	if !ok {
		return nil, &types.ResourceNotFoundException{
			Message: aws.String("Requested resource not found: Table: " + *tableName + " not found"),
		}
	}
	return schema, nil
}

// badgerLogger routes badger's printf-style logging into zap.
// Badger is chatty at info level, so everything but errors and warnings is debug.
type badgerLogger struct {
	log *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(trimNewline(format, args))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(trimNewline(format, args))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(trimNewline(format, args))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(trimNewline(format, args))
}

func trimNewline(format string, args []interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
