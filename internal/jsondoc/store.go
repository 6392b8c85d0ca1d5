package jsondoc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
)

// DefaultLockRetryDelay is the lock polling interval when Options leaves it unset.
const DefaultLockRetryDelay = 5 * time.Millisecond

var validate = validator.New(validator.WithRequiredStructEnabled())

// Options configures a Store. A nil *Options uses the defaults.
type Options struct {
	// Name labels metrics. Defaults to the file name without extension.
	Name string
	// LockRetryDelay is how often a blocked lock is retried.
	LockRetryDelay time.Duration
	// Indent writes the document with two-space indentation.
	Indent bool
	// Metrics records operation counts and latencies when set.
	Metrics *Metrics
}

// Store is a collection of records of one type persisted as a single JSON
// array. It is safe for concurrent use, including by other Store values and
// processes using the same path.
type Store[T any] struct {
	path       string
	lockPath   string
	name       string
	codec      Codec[T]
	retryDelay time.Duration
	indent     bool
	metrics    *Metrics
	schema     *jsonschema.Schema

	now     func() time.Time
	newID   func() string
	marshal func(doc []Fields) ([]byte, error)
}

// New returns a Store for the document at path, creating parent directories
// and an empty document when missing. A nil codec means JSONCodec[T].
func New[T any](path string, codec Codec[T], opts *Options) (*Store[T], error) {
	if codec == nil {
		codec = JSONCodec[T]{}
	}
	if opts == nil {
		opts = &Options{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: data directories are world-readable
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	name := opts.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	retry := opts.LockRetryDelay
	if retry <= 0 {
		retry = DefaultLockRetryDelay
	}
	s := &Store[T]{
		path:       path,
		lockPath:   path + ".lock",
		name:       name,
		codec:      codec,
		retryDelay: retry,
		indent:     opts.Indent,
		metrics:    opts.Metrics,
		schema:     reflectSchema[T](),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	s.marshal = s.marshalDocument
	if err := s.ensure(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the document path.
func (s *Store[T]) Path() string {
	return s.path
}

// Name returns the document name used in metrics.
func (s *Store[T]) Name() string {
	return s.name
}

// Schema returns the JSON Schema of T, or nil when T is not a struct.
func (s *Store[T]) Schema() *jsonschema.Schema {
	return s.schema
}

// ensure creates the empty document if it does not exist yet.
func (s *Store[T]) ensure() error {
	unlock, err := s.lock(context.Background(), exclusive)
	if err != nil {
		return err
	}
	defer unlock()
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return &StorageError{Op: "stat", Path: s.path, Err: err}
	}
	return s.write([]Fields{})
}

// Create stores item as a new record and returns it with its id and
// timestamps assigned.
func (s *Store[T]) Create(ctx context.Context, item T) (T, error) {
	return s.CreateIf(ctx, item, nil)
}

// CreateIf is Create guarded by allow. allow is called with the current
// records while the exclusive lock is held; when it returns an error the
// document is left untouched and that error is returned as is. A nil allow
// always permits the insert. Uniqueness and quota checks belong here.
func (s *Store[T]) CreateIf(ctx context.Context, item T, allow func(existing []T) error) (_ T, err error) {
	start := time.Now()
	rejected := false
	defer func() {
		merr := err
		if rejected {
			merr = errRejected
		}
		s.metrics.observeOp(s.name, "create", start, merr, true)
	}()
	var zero T
	fields, err := s.encode(item)
	if err != nil {
		return zero, err
	}
	err = s.modify(ctx, func(doc []Fields) ([]Fields, error) {
		if allow != nil {
			existing, err := s.decodeAll(doc)
			if err != nil {
				return nil, err
			}
			if err := allow(existing); err != nil {
				rejected = true
				return nil, err
			}
		}
		ids := make(map[string]struct{}, len(doc))
		for _, f := range doc {
			ids[f.ID()] = struct{}{}
		}
		id := s.newID()
		for _, dup := ids[id]; dup; _, dup = ids[id] {
			id = s.newID()
		}
		now := rawString(formatTime(s.now()))
		fields[FieldID] = rawString(id)
		fields[FieldCreatedAt] = now
		fields[FieldUpdatedAt] = now
		return append(doc, fields), nil
	})
	if err != nil {
		return zero, err
	}
	return s.decode(fields)
}

// GetAll returns every record in document order.
func (s *Store[T]) GetAll(ctx context.Context) (_ []T, err error) {
	start := time.Now()
	defer func() { s.metrics.observeOp(s.name, "get_all", start, err, true) }()
	var rows []Fields
	err = s.read(ctx, func(doc []Fields) {
		rows = doc
	})
	if err != nil {
		return nil, err
	}
	return s.decodeAll(rows)
}

// GetByID returns the record with the given id. The bool is false when no
// record matches; that is not an error.
func (s *Store[T]) GetByID(ctx context.Context, id string) (_ T, found bool, err error) {
	start := time.Now()
	defer func() { s.metrics.observeOp(s.name, "get", start, err, found) }()
	var zero T
	if id == "" {
		return zero, false, nil
	}
	var match Fields
	err = s.read(ctx, func(doc []Fields) {
		if i := indexOf(doc, id); i >= 0 {
			match = doc[i]
		}
	})
	if err != nil || match == nil {
		return zero, false, err
	}
	v, err := s.decode(match)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Update replaces every caller field of the record with those of item. The
// id and created_at are kept and updated_at is refreshed. The bool is false
// when no record matches; nothing is written then.
func (s *Store[T]) Update(ctx context.Context, id string, item T) (_ T, found bool, err error) {
	start := time.Now()
	defer func() { s.metrics.observeOp(s.name, "update", start, err, found) }()
	var zero T
	fields, err := s.encode(item)
	if err != nil {
		return zero, false, err
	}
	if id == "" {
		return zero, false, nil
	}
	err = s.modify(ctx, func(doc []Fields) ([]Fields, error) {
		i := indexOf(doc, id)
		if i < 0 {
			return nil, nil
		}
		found = true
		prev := doc[i]
		now := s.now()
		if last, ok := prev.time(FieldUpdatedAt); ok && now.Before(last) {
			now = last
		}
		fields[FieldID] = rawString(id)
		if created, ok := prev[FieldCreatedAt]; ok {
			fields[FieldCreatedAt] = created
		} else {
			fields[FieldCreatedAt] = rawString(formatTime(now))
		}
		fields[FieldUpdatedAt] = rawString(formatTime(now))
		doc[i] = fields
		return doc, nil
	})
	if err != nil || !found {
		return zero, false, err
	}
	v, err := s.decode(fields)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Delete removes the record with the given id. It returns false when no
// record matched, in which case the document is left untouched.
func (s *Store[T]) Delete(ctx context.Context, id string) (found bool, err error) {
	start := time.Now()
	defer func() { s.metrics.observeOp(s.name, "delete", start, err, found) }()
	if id == "" {
		return false, nil
	}
	err = s.modify(ctx, func(doc []Fields) ([]Fields, error) {
		kept := make([]Fields, 0, len(doc))
		for _, f := range doc {
			if f.ID() != id {
				kept = append(kept, f)
			}
		}
		if len(kept) == len(doc) {
			return nil, nil
		}
		found = true
		return kept, nil
	})
	return found, err
}

// Search returns every record that has each key of q with exactly that value.
// An empty query matches everything. Values are compared by their JSON form.
func (s *Store[T]) Search(ctx context.Context, q map[string]any) (_ []T, err error) {
	start := time.Now()
	defer func() { s.metrics.observeOp(s.name, "search", start, err, true) }()
	cq, err := compileQuery(q)
	if err != nil {
		return nil, err
	}
	var rows []Fields
	err = s.read(ctx, func(doc []Fields) {
		rows = make([]Fields, 0, len(doc))
		for _, f := range doc {
			if cq.match(f) {
				rows = append(rows, f)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return s.decodeAll(rows)
}

// Count returns the number of records.
func (s *Store[T]) Count(ctx context.Context) (n int, err error) {
	start := time.Now()
	defer func() { s.metrics.observeOp(s.name, "count", start, err, true) }()
	err = s.read(ctx, func(doc []Fields) {
		n = len(doc)
	})
	return n, err
}

// read loads the document under a shared lock and hands it to fn. The slice
// is private to the call.
func (s *Store[T]) read(ctx context.Context, fn func(doc []Fields)) error {
	unlock, err := s.lock(ctx, shared)
	if err != nil {
		return err
	}
	defer unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	s.metrics.setRecords(s.name, len(doc))
	fn(doc)
	return nil
}

// modify loads the document under an exclusive lock and hands it to fn. When
// fn returns a non-nil document it replaces the file before the lock is
// released.
func (s *Store[T]) modify(ctx context.Context, fn func(doc []Fields) ([]Fields, error)) error {
	unlock, err := s.lock(ctx, exclusive)
	if err != nil {
		return err
	}
	defer unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	next, err := fn(doc)
	if err != nil {
		return err
	}
	if next == nil {
		s.metrics.setRecords(s.name, len(doc))
		return nil
	}
	if err := s.write(next); err != nil {
		return err
	}
	s.metrics.setRecords(s.name, len(next))
	return nil
}

// load reads and parses the document. Must be called with the lock held.
// A missing or blank file is an empty document.
func (s *Store[T]) load() ([]Fields, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Fields{}, nil
		}
		return nil, &StorageError{Op: "read", Path: s.path, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []Fields{}, nil
	}
	var doc []Fields
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &StorageError{Op: "decode", Path: s.path, Err: err}
	}
	if doc == nil {
		doc = []Fields{}
	}
	return doc, nil
}

// write serializes doc in memory and atomically replaces the document. Must
// be called with the exclusive lock held.
func (s *Store[T]) write(doc []Fields) error {
	data, err := s.marshal(doc)
	if err != nil {
		return &StorageError{Op: "encode", Path: s.path, Err: err}
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil { //nolint:gosec // G306: documents are not secret on their own
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

func (s *Store[T]) marshalDocument(doc []Fields) ([]byte, error) {
	var data []byte
	var err error
	if s.indent {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// encode validates item and converts it to a fresh element without the
// reserved fields. It runs before any lock is taken.
func (s *Store[T]) encode(item T) (Fields, error) {
	if err := validateStruct(item); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	f, err := s.codec.Encode(item)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if f == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, errNotObject)
	}
	f = f.clone()
	for _, k := range reservedFields {
		delete(f, k)
	}
	for k, v := range f {
		if !json.Valid(v) {
			return nil, fmt.Errorf("%w: field %q is not valid JSON", ErrInvalidRecord, k)
		}
	}
	return f, nil
}

func (s *Store[T]) decode(f Fields) (T, error) {
	v, err := s.codec.Decode(f)
	if err != nil {
		return v, &StorageError{Op: "decode", Path: s.path, Err: err}
	}
	return v, nil
}

func (s *Store[T]) decodeAll(rows []Fields) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, f := range rows {
		v, err := s.decode(f)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func indexOf(doc []Fields, id string) int {
	for i, f := range doc {
		if f.ID() == id {
			return i
		}
	}
	return -1
}

// validateStruct runs the "validate" struct tags of v, if v is a struct or a
// pointer to one.
func validateStruct(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return errNotObject
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	return validate.Struct(rv.Interface())
}
