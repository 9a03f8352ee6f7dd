package policy

import "testing"

func TestNilFilterIgnoresNothing(t *testing.T) {
	var f *Filter
	if f.IgnoreFile("/etc/passwd") || f.IgnoreDir("/etc") {
		t.Fatal("nil filter must not ignore anything")
	}
	if !f.Empty() {
		t.Fatal("nil filter should be empty")
	}
	compiled, err := (*Ignore)(nil).Compile()
	if err != nil || compiled != nil {
		t.Fatalf("expected nil filter from nil ignore, got %v, %v", compiled, err)
	}
}

func TestFileFilterMatchesNameAndPrefix(t *testing.T) {
	f := MustCompile(Ignore{
		Patterns: []string{`\.log$`, `^~`},
		Paths:    []string{"/var/tmp"},
	})
	tests := []struct {
		path string
		want bool
	}{
		{"/var/log/syslog.log", true},
		{"/home/u/~draft", true},
		{"/var/tmp/x", true},
		{"/etc/passwd", false},
		// Patterns apply to the file name only, not the directory part.
		{"/srv/.log/data", false},
	}
	for _, tt := range tests {
		if got := f.IgnoreFile(tt.path); got != tt.want {
			t.Errorf("IgnoreFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestDirFilterMatchesFullPath(t *testing.T) {
	f := MustCompile(Ignore{Patterns: []string{`/\.git$`}, Paths: []string{"/proc"}})
	if !f.IgnoreDir("/srv/repo/.git") {
		t.Error("expected .git directory to be ignored")
	}
	if !f.IgnoreDir("/proc/1") {
		t.Error("expected /proc prefix to be ignored")
	}
	if f.IgnoreDir("/srv/repo") {
		t.Error("did not expect /srv/repo to be ignored")
	}
}

func TestPathsMatchWholeComponents(t *testing.T) {
	f := MustCompile(Ignore{Paths: []string{"/var/log/", "/srv/data"}})
	tests := []struct {
		path string
		want bool
	}{
		{"/var/log", true},
		{"/var/log/syslog", true},
		{"/var/log/nginx/access", true},
		{"/var/logs/app", false},
		{"/var/logfile", false},
		{"/srv/data", true},
		{"/srv/data/x", true},
		{"/srv/database", false},
	}
	for _, tt := range tests {
		if got := f.IgnoreDir(tt.path); got != tt.want {
			t.Errorf("IgnoreDir(%q) = %v, want %v", tt.path, got, tt.want)
		}
		if got := f.IgnoreFile(tt.path); got != tt.want {
			t.Errorf("IgnoreFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	root := MustCompile(Ignore{Paths: []string{"/"}})
	if !root.IgnoreFile("/etc/passwd") {
		t.Error("expected / to cover every absolute path")
	}
}

func TestPatternsArePercentDecoded(t *testing.T) {
	f := MustCompile(Ignore{Patterns: []string{"%5Ecache%24"}})
	if !f.IgnoreFile("/tmp/cache") {
		t.Fatal("expected decoded ^cache$ to match")
	}
	if f.IgnoreFile("/tmp/cached") {
		t.Fatal("expected anchored pattern not to match cached")
	}
	if _, err := (&Ignore{Patterns: []string{"%zz"}}).Compile(); err == nil {
		t.Fatal("expected invalid escape to fail")
	}
}
