package systemd

import "fmt"

// UnitPath is where `toolwarden init --install-systemd` writes the unit.
const UnitPath = "/etc/systemd/system/toolwarden.service"

// ServeTemplate returns the systemd unit that runs `toolwarden serve` with
// the config at configPath. State files live under /var/lib/toolwarden and
// the config directory; everything else is read-only.
func ServeTemplate(configPath string) string {
	return fmt.Sprintf(`[Unit]
Description=toolwarden tool firewall
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=/usr/local/bin/toolwarden serve --config %s --watch
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure
RestartSec=2
StateDirectory=toolwarden
NoNewPrivileges=true
PrivateTmp=true
ProtectSystem=strict
ProtectHome=true
ReadWritePaths=/etc/toolwarden /var/lib/toolwarden

[Install]
WantedBy=multi-user.target
`, configPath)
}
