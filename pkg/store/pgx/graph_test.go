package pgx

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/spacebio/knowledge-engine/backend/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakePublication struct {
	id                   int64
	key, title, url, doi string
}

// fakeState is the content of the fake database. Transactions work on a
// clone that replaces the state on commit.
type fakeState struct {
	nextID   int64
	pubs     map[string]fakePublication
	entities map[string]int64
	rows     map[int64]common.Entity
	mentions map[[2]int64]struct{}
}

func newFakeState() *fakeState {
	return &fakeState{
		pubs:     make(map[string]fakePublication),
		entities: make(map[string]int64),
		rows:     make(map[int64]common.Entity),
		mentions: make(map[[2]int64]struct{}),
	}
}

func (s *fakeState) clone() *fakeState {
	c := newFakeState()
	c.nextID = s.nextID
	for k, v := range s.pubs {
		c.pubs[k] = v
	}
	for k, v := range s.entities {
		c.entities[k] = v
	}
	for k, v := range s.rows {
		c.rows[k] = v
	}
	for k := range s.mentions {
		c.mentions[k] = struct{}{}
	}
	return c
}

// run interprets the statements issued by GraphDBStorage.
func (s *fakeState) run(sql string, args []any) ([][]any, error) {
	switch sql {
	case upsertPublicationSQL:
		key := args[0].(string)
		pub, ok := s.pubs[key]
		if !ok {
			s.nextID++
			pub.id = s.nextID
		}
		pub.key, pub.title, pub.url, pub.doi = key, args[1].(string), args[2].(string), args[3].(string)
		s.pubs[key] = pub
		return [][]any{{pub.id}}, nil
	case upsertEntitiesSQL:
		category := args[0].(string)
		keys, names := args[1].([]string), args[2].([]string)
		out := make([][]any, 0, len(keys))
		for i, k := range keys {
			id, ok := s.entities[category+"|"+k]
			if !ok {
				s.nextID++
				id = s.nextID
				s.entities[category+"|"+k] = id
				s.rows[id] = common.Entity{Category: common.Category(category), NameKey: k, Name: names[i]}
			}
			out = append(out, []any{id})
		}
		return out, nil
	case insertMentionsSQL:
		pubID := args[0].(int64)
		for _, id := range args[1].([]int64) {
			s.mentions[[2]int64{pubID, id}] = struct{}{}
		}
		return nil, nil
	case publicationByKeySQL:
		pub, ok := s.pubs[args[0].(string)]
		if !ok {
			return nil, nil
		}
		return [][]any{{pub.id, pub.key, pub.title, pub.url, pub.doi}}, nil
	case publicationEntitiesSQL:
		pubID := args[0].(int64)
		var ents []common.Entity
		for m := range s.mentions {
			if m[0] == pubID {
				ents = append(ents, s.rows[m[1]])
			}
		}
		sort.Slice(ents, func(i, j int) bool { return ents[i].ID() < ents[j].ID() })
		out := make([][]any, 0, len(ents))
		for _, e := range ents {
			out = append(out, []any{string(e.Category), e.NameKey, e.Name})
		}
		return out, nil
	case publicationKeyByDOISQL:
		var keys []string
		for _, pub := range s.pubs {
			if strings.EqualFold(pub.doi, args[0].(string)) {
				keys = append(keys, pub.key)
			}
		}
		if len(keys) == 0 {
			return nil, nil
		}
		sort.Strings(keys)
		return [][]any{{keys[0]}}, nil
	}
	return nil, fmt.Errorf("unexpected statement: %s", sql)
}

type fakeDB struct {
	state *fakeState
	// fail makes the named statement return an error.
	fail      map[string]error
	commits   int
	rollbacks int
}

func newFakeDB() *fakeDB {
	return &fakeDB{state: newFakeState(), fail: map[string]error{}}
}

func (db *fakeDB) exec(s *fakeState, sql string, args []any) ([][]any, error) {
	if err := db.fail[sql]; err != nil {
		return nil, err
	}
	return s.run(sql, args)
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	_, err := db.exec(db.state, sql, args)
	return pgconn.CommandTag{}, err
}

func (db *fakeDB) Query(_ context.Context, sql string, args ...any) (pgxv5.Rows, error) {
	rows, err := db.exec(db.state, sql, args)
	if err != nil {
		return nil, err
	}
	return &fakeRows{rows: rows}, nil
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgxv5.Row {
	rows, err := db.exec(db.state, sql, args)
	return fakeRow{rows: rows, err: err}
}

func (db *fakeDB) Begin(context.Context) (pgxv5.Tx, error) {
	return &fakeTx{db: db, state: db.state.clone()}, nil
}

type fakeTx struct {
	pgxv5.Tx
	db    *fakeDB
	state *fakeState
	done  bool
}

func (tx *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	_, err := tx.db.exec(tx.state, sql, args)
	return pgconn.CommandTag{}, err
}

func (tx *fakeTx) Query(_ context.Context, sql string, args ...any) (pgxv5.Rows, error) {
	rows, err := tx.db.exec(tx.state, sql, args)
	if err != nil {
		return nil, err
	}
	return &fakeRows{rows: rows}, nil
}

func (tx *fakeTx) QueryRow(_ context.Context, sql string, args ...any) pgxv5.Row {
	rows, err := tx.db.exec(tx.state, sql, args)
	return fakeRow{rows: rows, err: err}
}

func (tx *fakeTx) Commit(context.Context) error {
	if tx.done {
		return pgxv5.ErrTxClosed
	}
	tx.done = true
	tx.db.state = tx.state
	tx.db.commits++
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if tx.done {
		return pgxv5.ErrTxClosed
	}
	tx.done = true
	tx.db.rollbacks++
	return nil
}

type fakeRow struct {
	rows [][]any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(r.rows) == 0 {
		return pgxv5.ErrNoRows
	}
	return scanValues(dest, r.rows[0])
}

type fakeRows struct {
	pgxv5.Rows
	rows [][]any
	i    int
}

func (r *fakeRows) Next() bool {
	r.i++
	return r.i <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error { return scanValues(dest, r.rows[r.i-1]) }
func (r *fakeRows) Close()                 {}
func (r *fakeRows) Err() error             { return nil }

func scanValues(dest []any, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d targets for %d values", len(dest), len(values))
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(values[i]))
	}
	return nil
}

func testEntities() []common.Entity {
	return []common.Entity{
		{Category: common.CategoryOrganization, NameKey: "nasa", Name: "NASA"},
		{Category: common.CategoryPerson, NameKey: "jane doe", Name: "Jane Doe"},
		{Category: common.CategoryOrganization, NameKey: "nasa", Name: "Nasa"},
	}
}

func TestSaveDocumentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	s := NewGraphDBStorageWithConnection(db)
	pub := common.Publication{Key: "k1", Title: "Bone Loss", SourceURL: "https://example.org/1", DOI: "10.1038/abc"}

	for i := range 2 {
		if err := s.SaveDocument(ctx, pub, testEntities()); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	if db.commits != 2 || db.rollbacks != 0 {
		t.Fatalf("expected 2 commits and no rollback, got %d/%d", db.commits, db.rollbacks)
	}
	if len(db.state.pubs) != 1 || len(db.state.entities) != 2 || len(db.state.mentions) != 2 {
		t.Fatalf("expected 1 publication, 2 entities, 2 mentions, got %d/%d/%d",
			len(db.state.pubs), len(db.state.entities), len(db.state.mentions))
	}

	sg, err := s.PublicationSubgraph(ctx, "k1")
	if err != nil {
		t.Fatalf("subgraph: %v", err)
	}
	if len(sg.Nodes) != 3 || len(sg.Relationships) != 2 {
		t.Fatalf("expected 3 nodes and 2 edges, got %d/%d", len(sg.Nodes), len(sg.Relationships))
	}
	for _, n := range sg.Nodes {
		if n.ID == "Organization:nasa" && n.Properties["name"] != "NASA" {
			t.Fatalf("first seen display name must win, got %+v", n)
		}
	}
}

func TestSaveDocumentRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	db.fail[insertMentionsSQL] = errors.New("connection reset")
	s := NewGraphDBStorageWithConnection(db)

	err := s.SaveDocument(ctx, common.Publication{Key: "k1", Title: "Bone Loss"}, testEntities())
	if !errors.Is(err, common.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if db.commits != 0 || db.rollbacks != 1 {
		t.Fatalf("expected a rollback only, got %d commits/%d rollbacks", db.commits, db.rollbacks)
	}
	if len(db.state.pubs) != 0 || len(db.state.entities) != 0 {
		t.Fatalf("failed save must leave no rows, got %d publications/%d entities",
			len(db.state.pubs), len(db.state.entities))
	}
}

func TestPublicationSubgraphUnknownKey(t *testing.T) {
	s := NewGraphDBStorageWithConnection(newFakeDB())
	_, err := s.PublicationSubgraph(context.Background(), "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if errors.Is(err, common.ErrStoreUnavailable) {
		t.Fatalf("not found must not be reported as unavailable: %v", err)
	}
}

func TestPublicationKeyByDOI(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	s := NewGraphDBStorageWithConnection(db)
	if err := s.SaveDocument(ctx, common.Publication{Key: "k1", Title: "Bone Loss", DOI: "10.1038/ABC"}, nil); err != nil {
		t.Fatalf("save: %v", err)
	}

	key, err := s.PublicationKeyByDOI(ctx, "10.1038/abc")
	if err != nil || key != "k1" {
		t.Fatalf("expected k1, got %q, %v", key, err)
	}
	for _, doi := range []string{"10.1038/xyz", ""} {
		if _, err := s.PublicationKeyByDOI(ctx, doi); !errors.Is(err, common.ErrNotFound) {
			t.Fatalf("%q: expected not found, got %v", doi, err)
		}
	}
}

func TestStoreErrorsAreUnavailable(t *testing.T) {
	db := newFakeDB()
	db.fail[publicationByKeySQL] = errors.New("connection refused")
	s := NewGraphDBStorageWithConnection(db)
	_, err := s.PublicationSubgraph(context.Background(), "k1")
	if !errors.Is(err, common.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}
