package cliargs

import "testing"

func TestParse(t *testing.T) {
	m := Parse([]string{"host=0.0.0.0", "port=50600", "stray", "=orphan", "note=a=b"})
	if m["host"] != "0.0.0.0" || m["port"] != "50600" {
		t.Errorf("basic keys: %v", m)
	}
	if _, ok := m["stray"]; ok {
		t.Error("token without '=' should be ignored")
	}
	if _, ok := m[""]; ok {
		t.Error("empty key should be ignored")
	}
	if m["note"] != "a=b" {
		t.Errorf("value with '=': %q", m["note"])
	}
}

func TestParseLastWins(t *testing.T) {
	m := Parse([]string{"port=1", "port=2"})
	if m["port"] != "2" {
		t.Errorf("got %q", m["port"])
	}
}

func TestGet(t *testing.T) {
	m := Parse([]string{"host=example"})
	if Get(m, "host", "localhost") != "example" {
		t.Error("present key")
	}
	if Get(m, "port", "50600") != "50600" {
		t.Error("fallback")
	}
}
