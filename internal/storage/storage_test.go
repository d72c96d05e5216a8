package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type widget struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func TestCollection_PutGet(t *testing.T) {
	ctx := context.Background()
	c := NewCollection[widget](NewMemory(), "widgets")

	if err := c.Put(ctx, "w1", &widget{ID: "w1", Count: 3}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := c.Get(ctx, "w1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Count != 3 {
		t.Errorf("got count %d, want 3", got.Count)
	}
}

type envelope struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
}

func TestCollection_PutKeepsRawJSON(t *testing.T) {
	ctx := context.Background()
	c := NewCollection[envelope](NewMemory(), "envelopes")

	raw := json.RawMessage(`{"uri":"/assets/a.png"}`)
	if err := c.Put(ctx, "e1", &envelope{ID: "e1", Result: raw}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := c.Get(ctx, "e1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Result) != string(raw) {
		t.Errorf("result: got %s, want %s", got.Result, raw)
	}
}

func TestCollection_GetMissing(t *testing.T) {
	c := NewCollection[widget](NewMemory(), "widgets")
	_, err := c.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestCollection_AllSkipsCorrupt(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	c := NewCollection[widget](mem, "widgets")

	_ = c.Put(ctx, "a", &widget{ID: "a"})
	_ = c.Put(ctx, "b", &widget{ID: "b"})
	_ = mem.Put(ctx, "widgets", "broken", []byte("{not json"))

	all, err := c.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d records, want 2", len(all))
	}
}

func TestCollection_Delete(t *testing.T) {
	ctx := context.Background()
	c := NewCollection[widget](NewMemory(), "widgets")

	_ = c.Put(ctx, "a", &widget{ID: "a"})
	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if _, err := c.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestMemory_CollectionsIsolated(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	_ = mem.Put(ctx, "tasks", "x", []byte(`{}`))

	rows, err := mem.List(ctx, "storyboards")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows, want 0", len(rows))
	}
}
