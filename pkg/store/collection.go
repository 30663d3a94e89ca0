// Package store implements an in-memory document collection with live cursors. It stands in for
// the external document store that live views are built over, and also serves as the secondary
// store of reified views.
//
// A Collection is not safe for concurrent use.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	toolscache "k8s.io/client-go/tools/cache"

	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/selector"
	"github.com/l7mp/liveview/pkg/util"
)

var (
	// ErrDuplicateID is returned when inserting a document whose identifier already exists.
	ErrDuplicateID = errors.New("duplicate identifier")
	// ErrNotFound is returned when updating a document that does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidModifier is returned for malformed update modifiers.
	ErrInvalidModifier = errors.New("invalid update modifier")
)

// Options configure a collection.
type Options struct {
	// Name is used in logs and explain plans.
	Name string
	// IndexedFields are top-level fields with an equality index; Find uses the index when the
	// selector is a plain equality on one of them.
	IndexedFields []string
	Logger        logr.Logger
}

// record is the unit kept in the indexer. seq preserves insertion order for unsorted cursors.
type record struct {
	key string
	seq uint64
	doc document.Document
}

// Collection is an in-memory document collection.
type Collection struct {
	name      string
	indexer   toolscache.Indexer
	indexed   map[string]bool
	observers []*observer
	seq       uint64
	log       logr.Logger
}

// New creates an empty collection.
func New(opts Options) *Collection {
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	name := opts.Name
	if name == "" {
		name = "collection"
	}

	indexers := toolscache.Indexers{}
	indexed := map[string]bool{}
	for _, f := range opts.IndexedFields {
		indexers[indexName(f)] = fieldIndexFunc(f)
		indexed[f] = true
	}

	return &Collection{
		name:    name,
		indexer: toolscache.NewIndexer(recordKeyFunc, indexers),
		indexed: indexed,
		log:     logger.WithName("store").WithValues("collection", name),
	}
}

// Name returns the name of the collection.
func (c *Collection) Name() string { return c.name }

// Len returns the number of documents in the collection.
func (c *Collection) Len() int { return len(c.indexer.ListKeys()) }

// Insert adds a document. A missing identifier is generated. The identifier is returned.
func (c *Collection) Insert(doc document.Document) (any, error) {
	doc, err := document.Normalize(doc)
	if err != nil {
		return nil, err
	}

	id, ok := doc[document.IDField]
	if !ok || id == nil {
		id = document.NewStringID()
		doc[document.IDField] = id
	}
	key, err := IDKey(id)
	if err != nil {
		return nil, err
	}

	if _, exists, _ := c.indexer.GetByKey(key); exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, key)
	}

	c.seq++
	rec := &record{key: key, seq: c.seq, doc: doc}
	if err := c.indexer.Add(rec); err != nil {
		return nil, err
	}

	c.log.V(4).Info("insert", "id", id, "document", util.Stringify(doc))

	return id, c.notify(nil, rec)
}

// Update modifies the document with the given identifier. If update consists of modifier
// operators ($set, $unset, $inc) they are applied to the stored document; otherwise update
// replaces the stored document entirely, keeping its identifier.
func (c *Collection) Update(id any, update document.Document) error {
	old, err := c.getRecord(id)
	if err != nil {
		return err
	}

	newDoc, err := applyUpdate(old.doc, update)
	if err != nil {
		return err
	}

	rec := &record{key: old.key, seq: old.seq, doc: newDoc}
	if err := c.indexer.Update(rec); err != nil {
		return err
	}

	c.log.V(4).Info("update", "id", id, "document", util.Stringify(newDoc))

	return c.notify(old, rec)
}

// Upsert replaces the document with the same identifier or inserts it if it does not exist.
func (c *Collection) Upsert(doc document.Document) (any, error) {
	id, ok := doc[document.IDField]
	if !ok || id == nil {
		return c.Insert(doc)
	}
	if _, err := c.getRecord(id); errors.Is(err, ErrNotFound) {
		return c.Insert(doc)
	}
	return id, c.Update(id, doc)
}

// Remove deletes the document with the given identifier. It returns false if there was none.
func (c *Collection) Remove(id any) (bool, error) {
	old, err := c.getRecord(id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	if err := c.indexer.Delete(old); err != nil {
		return false, err
	}

	c.log.V(4).Info("remove", "id", id)

	return true, c.notify(old, nil)
}

// Get returns a copy of the document with the given identifier.
func (c *Collection) Get(id any) (document.Document, bool, error) {
	rec, err := c.getRecord(id)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	return document.DeepCopy(rec.doc), true, nil
}

// Find returns a cursor over the documents matching the selector.
func (c *Collection) Find(sel *selector.Selector, opts FindOptions) (*Cursor, error) {
	if opts.Sort != nil {
		if err := opts.Sort.Validate(); err != nil {
			return nil, err
		}
	}
	return &Cursor{collection: c, selector: sel, projection: opts.Projection, sort: opts.Sort}, nil
}

func (c *Collection) getRecord(id any) (*record, error) {
	key, err := IDKey(id)
	if err != nil {
		return nil, err
	}
	item, exists, err := c.indexer.GetByKey(key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return item.(*record), nil
}

// candidates returns the records that may match the selector, using a field index if possible,
// in insertion order.
func (c *Collection) candidates(sel *selector.Selector) []*record {
	var items []any
	used := false
	for f := range c.indexed {
		if val, ok := sel.EqualityValue(f); ok {
			key, err := document.CanonicalKey(val)
			if err != nil {
				break
			}
			if items, err = c.indexer.ByIndex(indexName(f), key); err == nil {
				used = true
				break
			}
		}
	}
	if !used {
		items = c.indexer.List()
	}

	recs := make([]*record, 0, len(items))
	for _, item := range items {
		recs = append(recs, item.(*record))
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	return recs
}

// IDKey returns the canonical storage key of an identifier.
func IDKey(id any) (string, error) {
	switch v := id.(type) {
	case string:
		return "s" + v, nil
	case document.ObjectID:
		return "o" + v.Hex(), nil
	case nil:
		return "", document.ErrMissingID
	default:
		key, err := document.CanonicalKey(v)
		if err != nil {
			return "", err
		}
		return "v" + key, nil
	}
}

func recordKeyFunc(obj any) (string, error) {
	rec, ok := obj.(*record)
	if !ok {
		return "", fmt.Errorf("unexpected object of type %T in collection", obj)
	}
	return rec.key, nil
}

func indexName(field string) string { return "field:" + field }

func fieldIndexFunc(field string) toolscache.IndexFunc {
	return func(obj any) ([]string, error) {
		rec, ok := obj.(*record)
		if !ok {
			return nil, fmt.Errorf("unexpected object of type %T in collection", obj)
		}
		val, ok := rec.doc[field]
		if !ok {
			return []string{}, nil
		}
		// lists are indexed by their elements too, as equality matches list membership
		vals := []any{val}
		if list, ok := val.([]any); ok {
			vals = append(vals, list...)
		}
		keys := make([]string, 0, len(vals))
		for _, v := range vals {
			key, err := document.CanonicalKey(v)
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}
		return keys, nil
	}
}

// applyUpdate computes the new version of a document.
func applyUpdate(old, update document.Document) (document.Document, error) {
	update, err := document.Normalize(update)
	if err != nil {
		return nil, err
	}

	modifiers, plain := 0, 0
	for k := range update {
		if strings.HasPrefix(k, "$") {
			modifiers++
		} else {
			plain++
		}
	}

	id := old[document.IDField]
	if modifiers == 0 {
		if newID, ok := update[document.IDField]; ok && !document.DeepEqual(newID, id) {
			return nil, fmt.Errorf("%w: cannot change the identifier", ErrInvalidModifier)
		}
		update[document.IDField] = id
		return update, nil
	}
	if plain > 0 {
		return nil, fmt.Errorf("%w: cannot mix modifiers and fields in %s", ErrInvalidModifier,
			util.Stringify(update))
	}

	doc := document.DeepCopy(old)
	for _, op := range document.Keys(update) {
		args, ok := update[op].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a document", ErrInvalidModifier, op)
		}
		for _, field := range document.Keys(args) {
			if field == document.IDField {
				return nil, fmt.Errorf("%w: cannot modify the identifier", ErrInvalidModifier)
			}
			switch op {
			case "$set":
				doc[field] = args[field]
			case "$unset":
				delete(doc, field)
			case "$inc":
				v, err := document.Add(doc[field], args[field])
				if err != nil {
					return nil, fmt.Errorf("%w: %w", ErrInvalidModifier, err)
				}
				doc[field] = v
			default:
				return nil, fmt.Errorf("%w: unknown operator %s", ErrInvalidModifier, op)
			}
		}
	}
	return doc, nil
}
