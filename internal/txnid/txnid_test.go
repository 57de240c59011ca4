package txnid

import "testing"

func TestNextIsMonotoneAndScoped(t *testing.T) {
	clock := int64(1000)
	g := New("mybot", func() int64 { return clock })

	first := g.Next()
	clock = 2000
	second := g.Next()

	if first == second {
		t.Fatalf("expected distinct transaction ids, got %q twice", first)
	}
	if first != "mybot-1-1000" {
		t.Errorf("first = %q", first)
	}
	if second != "mybot-2-2000" {
		t.Errorf("second = %q", second)
	}
}
