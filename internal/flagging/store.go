// Package flagging records user reports about individual predictions, such as
// "blurry" or "incorrect", so they can be reviewed later.
package flagging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidOption is returned for a flag option that is not configured.
var ErrInvalidOption = errors.New("invalid flag option")

// Flag is one stored report.
type Flag struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Option    string    `json:"option"`
	ImageName string    `json:"image_name,omitempty"`
	Output    string    `json:"output,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Store persists flags.
type Store interface {
	// Save validates f, assigns ID and CreatedAt, and stores it.
	Save(ctx context.Context, f *Flag) error

	// List returns flags oldest first.
	List(ctx context.Context) ([]Flag, error)

	// Options returns the accepted option values.
	Options() []string

	Close() error
}

const keyPrefix = "flag:"

// Options configures a Badger store.
type Options struct {
	// Dir is where badger keeps its files; ignored when InMemory is set
	Dir      string
	InMemory bool
	// Allowed lists the accepted option values
	Allowed []string
	Logger  *zap.Logger
}

// Badger is a Store backed by BadgerDB.
type Badger struct {
	db      *badger.DB
	allowed []string
}

// NewBadger opens (or creates) a flag store.
func NewBadger(opts Options) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("flagging: Dir is required for on-disk mode")
	}
	if len(opts.Allowed) == 0 {
		return nil, errors.New("flagging: at least one option is required")
	}

	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	if opts.Logger != nil {
		dbOpts = dbOpts.WithLogger(zapLogger{opts.Logger.Sugar()})
	} else {
		dbOpts = dbOpts.WithLogger(nil)
	}

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open flag store: %w", err)
	}
	return &Badger{db: db, allowed: slices.Clone(opts.Allowed)}, nil
}

func (b *Badger) Options() []string {
	return slices.Clone(b.allowed)
}

func (b *Badger) Save(_ context.Context, f *Flag) error {
	if !slices.Contains(b.allowed, f.Option) {
		return fmt.Errorf("%w: %q", ErrInvalidOption, f.Option)
	}

	// v7 ids sort by creation time, so key order is chronological
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate flag id: %w", err)
	}
	f.ID = id.String()
	f.CreatedAt = time.Now().UTC()

	value, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode flag: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+f.ID), value)
	})
}

func (b *Badger) List(ctx context.Context) ([]Flag, error) {
	flags := []Flag{}
	prefix := []byte(keyPrefix)
	err := b.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var f Flag
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &f)
			})
			if err != nil {
				return fmt.Errorf("failed to decode flag %s: %w", it.Item().Key(), err)
			}
			flags = append(flags, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return flags, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// zapLogger adapts a zap logger to badger.Logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Errorf(f string, v ...interface{})   { l.s.Errorf(f, v...) }
func (l zapLogger) Warningf(f string, v ...interface{}) { l.s.Warnf(f, v...) }
func (l zapLogger) Infof(f string, v ...interface{})    { l.s.Debugf(f, v...) }
func (l zapLogger) Debugf(f string, v ...interface{})   { l.s.Debugf(f, v...) }
