package auth

import (
	"encoding/base64"
	"net/http"
	"testing"
)

func basic(credential string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(credential))
}

func TestCheckAuth(t *testing.T) {
	table := NewCredentialTable(map[string]string{
		"admin:mpbm":  "admin",
		"viewer:pass": "readonly",
		"guest:guest": "",
	})

	tests := []struct {
		name          string
		header        string
		wantPrivilege string
		wantOK        bool
	}{
		{"no header", "", "", false},
		{"valid admin", basic("admin:mpbm"), "admin", true},
		{"valid viewer", basic("viewer:pass"), "readonly", true},
		{"scheme is case-insensitive", "bAsIc " + base64.StdEncoding.EncodeToString([]byte("admin:mpbm")), "admin", true},
		{"unknown credential", basic("admin:wrong"), "", false},
		{"credential is case-exact", basic("Admin:mpbm"), "", false},
		{"no normalization of whitespace", basic("admin:mpbm "), "", false},
		{"bearer scheme", "Bearer abc", "", false},
		{"missing payload", "Basic", "", false},
		{"bad base64", "Basic !!!not-base64!!!", "", false},
		{"invalid utf8", "Basic " + base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe, ':', 'x'}), "", false},
		{"empty payload", "Basic ", "", false},
		{"empty privilege", basic("guest:guest"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Authorization", tt.header)
			}

			privilege, ok := table.CheckAuth(h)
			if ok != tt.wantOK || privilege != tt.wantPrivilege {
				t.Errorf("CheckAuth() = (%q, %v), want (%q, %v)", privilege, ok, tt.wantPrivilege, tt.wantOK)
			}
		})
	}
}

func TestNewCredentialTable_Copies(t *testing.T) {
	src := map[string]string{"a:b": "admin"}
	table := NewCredentialTable(src)
	src["c:d"] = "admin"
	delete(src, "a:b")

	if table.Len() != 1 {
		t.Errorf("Len() = %d, want 1", table.Len())
	}
	if _, ok := table.Lookup("a:b"); !ok {
		t.Error("Lookup(a:b) missing after source mutation")
	}
}

func TestLookup_EmptyPrivilege(t *testing.T) {
	table := NewCredentialTable(map[string]string{"guest:guest": ""})

	if privilege, ok := table.Lookup("guest:guest"); ok || privilege != "" {
		t.Errorf("Lookup() = (%q, %v), want (\"\", false)", privilege, ok)
	}
}
