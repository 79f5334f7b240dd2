package models

import "testing"

func TestScopeRendering(t *testing.T) {
	s := ProjectScope("42")
	if s.String() != "project:42" {
		t.Errorf("String() = %q", s.String())
	}
	if s.Path() != "/ws/project/42/" {
		t.Errorf("Path() = %q", s.Path())
	}
	if got := UserScope("7").Path(); got != "/ws/user/7/" {
		t.Errorf("user Path() = %q", got)
	}
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		raw     string
		want    Scope
		wantErr bool
	}{
		{raw: "project:42", want: ProjectScope("42")},
		{raw: "user:7", want: UserScope("7")},
		{raw: "team:1", wantErr: true},
		{raw: "project:", wantErr: true},
		{raw: "project", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseScope(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseScope(%q) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseScope(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
