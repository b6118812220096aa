package session

import "testing"

func TestNewWithKeyIsSelected(t *testing.T) {
	c := New("key-1")
	if !c.Selected() {
		t.Error("seeded session should start selected")
	}
	if c.APIKey() != "key-1" {
		t.Errorf("APIKey = %q", c.APIKey())
	}
}

func TestNewWithoutKeyIsUnselected(t *testing.T) {
	c := New("")
	if c.Selected() {
		t.Error("empty session should start unselected")
	}
}

func TestInvalidateKeepsKey(t *testing.T) {
	c := New("key-1")
	c.Invalidate()
	if c.Selected() {
		t.Error("invalidate should clear the selected flag")
	}
	if c.APIKey() != "key-1" {
		t.Error("invalidate should keep the key")
	}
}

func TestSelectReplacesKey(t *testing.T) {
	c := New("")
	c.Select("key-2")
	if !c.Selected() || c.APIKey() != "key-2" {
		t.Errorf("select did not apply: selected=%v key=%q", c.Selected(), c.APIKey())
	}
}

func TestClear(t *testing.T) {
	c := New("key-1")
	c.Clear()
	if c.Selected() || c.APIKey() != "" {
		t.Error("clear should drop key and flag")
	}
}
