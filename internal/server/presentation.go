package server

import (
	"fmt"
	"html/template"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-media/internal/infrastructure/config"
)

// ResolvePresentationURL derives the presentation URL advertised in the
// device description.
//
// An empty configured value becomes http://ip:port/. With appendTo "ip"
// the value is prefixed with http://ip: and with "port" it is prefixed
// with http://ip:port/. Any other policy uses the value as configured.
func ResolvePresentationURL(configured, appendTo, ip string, port int) string {
	if configured == "" {
		return "http://" + net.JoinHostPort(ip, strconv.Itoa(port)) + "/"
	}
	switch appendTo {
	case config.AppendToIP:
		host := ip
		if strings.Contains(ip, ":") {
			host = "[" + ip + "]"
		}
		return "http://" + host + ":" + configured
	case config.AppendToPort:
		return "http://" + net.JoinHostPort(ip, strconv.Itoa(port)) + "/" + configured
	default:
		return configured
	}
}

var bookmarkTemplate = template.Must(template.New("bookmark").Parse(`<!DOCTYPE html>
<html>
<head>
<meta http-equiv="Refresh" content="0;URL={{.}}">
<title>Gray Logic Media</title>
</head>
<body>
<a href="{{.}}">Gray Logic Media</a>
</body>
</html>
`))

// writeBookmark writes a page redirecting to the running server so the
// web UI can be found from a fixed file. An empty path disables it.
func writeBookmark(path, ip string, port int) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating bookmark directory: %w", err)
	}

	var b strings.Builder
	target := "http://" + net.JoinHostPort(ip, strconv.Itoa(port)) + "/"
	if err := bookmarkTemplate.Execute(&b, target); err != nil {
		return fmt.Errorf("rendering bookmark: %w", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil { //nolint:gosec // bookmark is public
		return fmt.Errorf("writing bookmark: %w", err)
	}
	return nil
}
