package systemd

import (
	"strings"
	"testing"
)

func TestServeTemplate(t *testing.T) {
	tmpl := ServeTemplate("/etc/toolwarden/config.yaml")

	for _, section := range []string{"[Unit]", "[Service]", "[Install]"} {
		if !strings.Contains(tmpl, section) {
			t.Errorf("template missing section %s", section)
		}
	}

	if !strings.Contains(tmpl, "ExecStart=/usr/local/bin/toolwarden serve --config /etc/toolwarden/config.yaml --watch") {
		t.Error("template missing toolwarden serve command")
	}

	for _, directive := range []string{"NoNewPrivileges=true", "PrivateTmp=true", "ProtectSystem=strict"} {
		if !strings.Contains(tmpl, directive) {
			t.Errorf("template missing security directive %s", directive)
		}
	}

	if strings.Contains(tmpl, "%!") {
		t.Errorf("template has a formatting error:\n%s", tmpl)
	}
}
