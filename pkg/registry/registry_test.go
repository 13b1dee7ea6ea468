package registry

import (
	"fmt"
	"testing"
)

// toolDescriptor is a small stand-in for internal/tools.Descriptor,
// registered under tool names, so these tests exercise the registry
// the way the tool registry keys it.
type toolDescriptor struct {
	Name string
	Kind string
}

func TestBaseRegistry_Register(t *testing.T) {
	reg := NewBaseRegistry[toolDescriptor]()

	tests := []struct {
		name    string
		id      string
		item    toolDescriptor
		wantErr bool
	}{
		{name: "register web_search", id: "web_search", item: toolDescriptor{Name: "web_search", Kind: "search"}, wantErr: false},
		{name: "empty name rejected", id: "", item: toolDescriptor{Name: "", Kind: "search"}, wantErr: true},
		{name: "duplicate name rejected", id: "web_search", item: toolDescriptor{Name: "web_search", Kind: "search"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Register(tt.id, tt.item)
			if (err != nil) != tt.wantErr {
				t.Errorf("Register() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBaseRegistry_Get(t *testing.T) {
	reg := NewBaseRegistry[toolDescriptor]()
	want := toolDescriptor{Name: "extract_page_content", Kind: "extract"}
	if err := reg.Register(want.Name, want); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if got, ok := reg.Get(want.Name); !ok || got != want {
		t.Errorf("Get(%q) = %v, %v; want %v, true", want.Name, got, ok, want)
	}
	if _, ok := reg.Get("missing"); ok {
		t.Error("Get(missing) = true, want false")
	}
}

func TestBaseRegistry_List(t *testing.T) {
	reg := NewBaseRegistry[toolDescriptor]()
	if got := reg.List(); len(got) != 0 {
		t.Fatalf("List() on empty registry = %v, want empty", got)
	}

	tools := []toolDescriptor{
		{Name: "web_search", Kind: "search"},
		{Name: "extract_page_content", Kind: "extract"},
		{Name: "request_clarification", Kind: "control"},
	}
	for _, tl := range tools {
		if err := reg.Register(tl.Name, tl); err != nil {
			t.Fatalf("Register(%s): %v", tl.Name, err)
		}
	}

	got := reg.List()
	if len(got) != len(tools) {
		t.Fatalf("List() length = %d, want %d", len(got), len(tools))
	}
	byName := make(map[string]toolDescriptor, len(got))
	for _, d := range got {
		byName[d.Name] = d
	}
	for _, tl := range tools {
		if byName[tl.Name] != tl {
			t.Errorf("List() missing or mismatched entry for %s", tl.Name)
		}
	}
}

func TestBaseRegistry_Remove(t *testing.T) {
	reg := NewBaseRegistry[toolDescriptor]()
	_ = reg.Register("web_search", toolDescriptor{Name: "web_search", Kind: "search"})

	if err := reg.Remove("web_search"); err != nil {
		t.Errorf("Remove(existing) error = %v, want nil", err)
	}
	if _, ok := reg.Get("web_search"); ok {
		t.Error("item still present after Remove")
	}
	if err := reg.Remove("web_search"); err == nil {
		t.Error("Remove(already-removed) error = nil, want error")
	}
}

func TestBaseRegistry_Concurrency(t *testing.T) {
	reg := NewBaseRegistry[toolDescriptor]()
	done := make(chan bool, 2)

	go func() {
		defer func() { done <- true }()
		for i := 0; i < 100; i++ {
			name := fmt.Sprintf("tool-%d", i)
			_ = reg.Register(name, toolDescriptor{Name: name})
		}
	}()

	go func() {
		defer func() { done <- true }()
		for i := 0; i < 100; i++ {
			reg.Get(fmt.Sprintf("tool-%d", i))
			reg.List()
		}
	}()

	<-done
	<-done

	if got := len(reg.List()); got != 100 {
		t.Errorf("List() length after concurrent registration = %d, want 100", got)
	}
}
