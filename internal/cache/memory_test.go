package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "settings", `{"vat_rate":8}`, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, ok, err := c.Get(ctx, "settings")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if val != `{"vat_rate":8}` {
		t.Errorf("val = %q", val)
	}

	if _, ok, _ := c.Get(ctx, "absent"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "short", "v", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "short"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestMemoryCacheDelete(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "a", "1", 0)
	c.Set(ctx, "b", "2", 0)
	if err := c.Delete(ctx, "a", "b", "never-existed"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "a"); ok {
		t.Error("a should be gone")
	}
}

func TestGetJSONRoundTrip(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	type page struct {
		Items []string `json:"items"`
		Total int      `json:"total"`
	}
	if err := SetJSON(ctx, c, "catalog:page:1", page{Items: []string{"p1", "p2"}, Total: 2}, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	var got page
	ok, err := GetJSON(ctx, c, "catalog:page:1", &got)
	if err != nil || !ok {
		t.Fatalf("GetJSON: ok=%v err=%v", ok, err)
	}
	if got.Total != 2 || len(got.Items) != 2 {
		t.Errorf("got = %+v", got)
	}

	ok, err = GetJSON(ctx, c, "missing", &got)
	if err != nil || ok {
		t.Errorf("miss: ok=%v err=%v", ok, err)
	}
}
