package client

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	// Unix sockets of local displays live in this directory, named X<number>.
	socketDir = "/tmp/.X11-unix"

	// TCP displays listen on tcpBasePort plus the display number.
	tcpBasePort = 6000
)

var ErrInvalidDisplay = errors.New("invalid display name")

// Display is a parsed display name.
type Display struct {
	Network string
	Address string
	Number  int
	Screen  int
}

// ParseDisplay resolves a display name of the form [protocol/][host]:number[.screen].
//
// An empty host or the host "unix" means the local Unix socket. A name that
// starts with '/' is the path of a Unix socket, optionally followed by
// :number[.screen].
func ParseDisplay(name string) (Display, error) {
	if name == "" {
		return Display{}, fmt.Errorf("%w: empty", ErrInvalidDisplay)
	}

	if strings.HasPrefix(name, "/") {
		return parseSocketPath(name)
	}

	var proto string
	if i := strings.Index(name, "/"); i >= 0 {
		proto, name = name[:i], name[i+1:]
	}

	colon := strings.LastIndex(name, ":")
	if colon < 0 {
		return Display{}, fmt.Errorf("%w: %q has no display number", ErrInvalidDisplay, name)
	}

	host := name[:colon]

	number, screen, err := parseNumber(name[colon+1:])
	if err != nil {
		return Display{}, fmt.Errorf("%w: %q: %s", ErrInvalidDisplay, name, err)
	}

	d := Display{Number: number, Screen: screen}

	switch {
	case proto == "unix" || (proto == "" && (host == "" || host == "unix")):
		d.Network = "unix"
		d.Address = socketDir + "/X" + strconv.Itoa(number)

	case proto == "" || proto == "tcp" || proto == "inet" || proto == "inet6":
		if host == "" {
			host = "localhost"
		}

		d.Network = "tcp"
		d.Address = net.JoinHostPort(host, strconv.Itoa(tcpBasePort+number))

	default:
		return Display{}, fmt.Errorf("%w: unsupported protocol %q", ErrInvalidDisplay, proto)
	}

	return d, nil
}

func parseSocketPath(name string) (Display, error) {
	if colon := strings.LastIndex(name, ":"); colon > 0 {
		if number, screen, err := parseNumber(name[colon+1:]); err == nil {
			return Display{Network: "unix", Address: name[:colon], Number: number, Screen: screen}, nil
		}
	}

	return Display{Network: "unix", Address: name}, nil
}

func parseNumber(s string) (number, screen int, err error) {
	num := s
	if dot := strings.Index(s, "."); dot >= 0 {
		num = s[:dot]

		screen, err = strconv.Atoi(s[dot+1:])
		if err != nil || screen < 0 {
			return 0, 0, fmt.Errorf("bad screen number %q", s[dot+1:])
		}
	}

	number, err = strconv.Atoi(num)
	if err != nil || number < 0 {
		return 0, 0, fmt.Errorf("bad display number %q", num)
	}

	return number, screen, nil
}
