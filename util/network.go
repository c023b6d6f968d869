package util

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// ParseUserHost splits "user@host[:port]" into its parts.  The port
// falls back to defPort when omitted.  IPv6 hosts must be bracketed
// when a port is given.
func ParseUserHost(s string, defPort int) (user, host string, port int, err error) {
	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 {
		return "", "", 0, fmt.Errorf("%q: expected user@host[:port]", s)
	}
	user, rest := s[:at], s[at+1:]

	host, portStr, splitErr := net.SplitHostPort(rest)
	if splitErr != nil {
		// No port present.
		host = strings.Trim(rest, "[]")
		return user, host, defPort, nil
	}
	port, err = strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", "", 0, fmt.Errorf("%q: invalid port %q", s, portStr)
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("%q: empty host", s)
	}
	return user, host, port, nil
}

// FindFreePort returns an available TCP port on 127.0.0.1.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
