package probe

import (
	"testing"
	"time"
)

func TestMinIntervalCacheServesCachedValueWithinWindow(t *testing.T) {
	c := newMinIntervalCache[int](time.Hour)
	calls := 0
	refresh := func() (int, error) {
		calls++
		return calls, nil
	}

	v1, err := c.getOrRefresh(refresh)
	if err != nil || v1 != 1 {
		t.Fatalf("first call: v=%d err=%v", v1, err)
	}
	v2, err := c.getOrRefresh(refresh)
	if err != nil || v2 != 1 {
		t.Fatalf("expected cached value 1, got %d (err=%v)", v2, err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one refresh, got %d", calls)
	}
}

func TestMinIntervalCacheRefreshesAfterWindow(t *testing.T) {
	c := newMinIntervalCache[int](time.Millisecond)
	calls := 0
	refresh := func() (int, error) {
		calls++
		return calls, nil
	}

	if _, err := c.getOrRefresh(refresh); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	v, err := c.getOrRefresh(refresh)
	if err != nil || v != 2 {
		t.Fatalf("expected refreshed value 2, got %d (err=%v)", v, err)
	}
}

func TestIsVirtualInterface(t *testing.T) {
	cases := map[string]bool{
		"eth0":    false,
		"lo":      true,
		"docker0": true,
		"veth123": true,
		"br-abcd": true,
	}
	for name, want := range cases {
		if got := isVirtualInterface(name); got != want {
			t.Errorf("isVirtualInterface(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestParseHumanBytes(t *testing.T) {
	cases := map[string]uint64{
		"1.5MiB": uint64(1.5 * 1024 * 1024),
		"2GB":    2_000_000_000,
		"0B":     0,
		"":       0,
	}
	for in, want := range cases {
		if got := parseHumanBytes(in); got != want {
			t.Errorf("parseHumanBytes(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseNetIO(t *testing.T) {
	rx, tx := parseNetIO("1.2MB / 3.4MB")
	if rx == 0 || tx == 0 {
		t.Fatalf("expected nonzero rx/tx, got rx=%d tx=%d", rx, tx)
	}
}

func TestParsePercent(t *testing.T) {
	if got := parsePercent("12.34%"); got != 12.34 {
		t.Fatalf("parsePercent = %v, want 12.34", got)
	}
}
