package fiemap

import "testing"

func TestFlagHas(t *testing.T) {
	f := FlagShared | FlagLast
	if !f.Has(FlagShared) {
		t.Fatal("expected SHARED bit set")
	}
	if !f.Has(FlagLast) {
		t.Fatal("expected LAST bit set")
	}
	if f.Has(FlagEncoded) {
		t.Fatal("did not expect ENCODED bit set")
	}
}

func TestExtentShared(t *testing.T) {
	e := Extent{Flags: FlagShared}
	if !e.Shared() {
		t.Fatal("expected Shared() true")
	}
	e2 := Extent{Flags: FlagUnwritten}
	if e2.Shared() {
		t.Fatal("expected Shared() false")
	}
}
