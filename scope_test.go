package leafz

import (
	"testing"
)

func TestScopeInRoot(t *testing.T) {
	s := newScope(Config{Root: "/app", NonRootTypes: []string{"Module", "Class", "BasicObject"}})

	tests := []struct {
		name string
		typ  string
		path string
		want bool
	}{
		{"under root", "User", "/app/models/user.rb", true},
		{"root itself", "User", "/app", true},
		{"sibling sharing prefix", "User", "/application/user.rb", false},
		{"outside root", "User", "/gems/rack/lib/rack.rb", false},
		{"relative path", "User", "lib/user.rb", false},
		{"empty path", "User", "", false},
		{"internal", "Kernel", "<internal:kernel>", false},
		{"eval", "User", "(eval)", false},
		{"non-root type", "Module", "/app/models/user.rb", false},
		{"class type", "Class", "/app/models/user.rb", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.inRoot(tt.typ, tt.path, false); got != tt.want {
				t.Errorf("inRoot(%q, %q) = %v, want %v", tt.typ, tt.path, got, tt.want)
			}
		})
	}
}

func TestScopeNoRoot(t *testing.T) {
	s := newScope(Config{})

	if !s.inRoot("User", "/anywhere/user.rb", false) {
		t.Error("Expected any absolute path to be in root without a configured root")
	}
	if s.inRoot("User", "", false) {
		t.Error("Expected empty path to stay out of root")
	}
	if s.inRoot("User", "<main>", false) {
		t.Error("Expected synthetic path to stay out of root")
	}
}

func TestScopeRelativePaths(t *testing.T) {
	s := newScope(Config{Root: "/work/project"})

	if s.inRoot("Foo", "lib/foo.rb", false) {
		t.Error("Expected a relative call path to stay out of a configured root")
	}
	if !s.inRoot("Foo", "lib/foo.rb", true) {
		t.Error("Expected a relative line path to count as in root")
	}
	if s.inRoot("Foo", "<main>", true) {
		t.Error("Expected synthetic line path to stay out of root")
	}

	open := newScope(Config{})
	if !open.inRoot("Foo", "lib/foo.rb", false) {
		t.Error("Expected a relative call path to be in root without a configured root")
	}
}

func TestScopeFilesystemRoot(t *testing.T) {
	s := newScope(Config{Root: "/"})
	if !s.inRoot("User", "/srv/app/user.rb", false) {
		t.Error("Expected every absolute path to be under /")
	}
}

func TestScopeBlocked(t *testing.T) {
	s := newScope(Config{Blocklist: []string{"vendor/", "_spec.rb"}})

	tests := []struct {
		path string
		want bool
	}{
		{"/app/vendor/bundle/rack.rb", true},
		{"/app/spec/user_spec.rb", true},
		{"/app/models/user.rb", false},
		{"", true},
	}
	for _, tt := range tests {
		if got := s.blocked(tt.path); got != tt.want {
			t.Errorf("blocked(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	open := newScope(Config{})
	if open.blocked("") {
		t.Error("Expected unknown path to pass without a blocklist")
	}
}
