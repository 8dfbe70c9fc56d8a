package main

import "testing"

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"serve": false, "wizard": false, "locate": false, "version": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("missing %s command", name)
		}
	}
	if root.PersistentFlags().Lookup("env-file") == nil || root.PersistentFlags().Lookup("log-level") == nil {
		t.Fatal("global flags not registered")
	}
}
