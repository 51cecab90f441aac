// Package link owns one MAVLink transport: it opens the socket or serial
// port, runs a gomavlib node over it and exposes received frames, a send
// primitive, liveness and traffic rates.
package link

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"

	"GroundLink/internal/models"
)

// Endpoint describes where a link connects to.
type Endpoint struct {
	Kind    models.LinkKind
	Address string // host:port for udp and tcp
	Device  string
	Baud    int
}

// ParseURI parses udpout:host:port, tcpout:host:port and serial:device:baud.
func ParseURI(uri string) (Endpoint, error) {
	scheme, rest, ok := strings.Cut(uri, ":")
	if !ok || rest == "" {
		return Endpoint{}, errors.Errorf("invalid link uri %q", uri)
	}

	switch scheme {
	case "udpout", "tcpout":
		if _, _, err := net.SplitHostPort(rest); err != nil {
			return Endpoint{}, errors.Wrapf(err, "invalid link uri %q", uri)
		}
		kind := models.LinkUDP
		if scheme == "tcpout" {
			kind = models.LinkTCP
		}
		return Endpoint{Kind: kind, Address: rest}, nil

	case "serial":
		i := strings.LastIndex(rest, ":")
		if i <= 0 {
			return Endpoint{}, errors.Errorf("invalid serial uri %q, expected serial:device:baud", uri)
		}
		baud, err := strconv.Atoi(rest[i+1:])
		if err != nil || baud <= 0 {
			return Endpoint{}, errors.Errorf("invalid baud rate in %q", uri)
		}
		return Endpoint{Kind: models.LinkSerial, Device: rest[:i], Baud: baud}, nil
	}
	return Endpoint{}, errors.Errorf("unsupported link scheme %q", scheme)
}

// URI is the inverse of ParseURI.
func (e Endpoint) URI() string {
	switch e.Kind {
	case models.LinkUDP:
		return "udpout:" + e.Address
	case models.LinkTCP:
		return "tcpout:" + e.Address
	case models.LinkSerial:
		return fmt.Sprintf("serial:%s:%d", e.Device, e.Baud)
	}
	return string(e.Kind)
}

func (e Endpoint) String() string { return e.URI() }

// EndpointFromModel converts a stored link protocol.
func EndpointFromModel(p models.LinkProtocol) Endpoint {
	return Endpoint{Kind: p.Kind, Address: p.Address, Device: p.Device, Baud: p.Baud}
}

// Model converts back to the stored form.
func (e Endpoint) Model(version models.MavlinkVersion) models.LinkProtocol {
	return models.LinkProtocol{Kind: e.Kind, Address: e.Address, Device: e.Device, Baud: e.Baud, Version: version}
}

// open creates the transport. UDP sockets are connected so that reads only
// see the peer's datagrams.
func (e Endpoint) open(timeout time.Duration) (io.ReadWriteCloser, error) {
	switch e.Kind {
	case models.LinkUDP:
		return net.Dial("udp", e.Address)
	case models.LinkTCP:
		return net.DialTimeout("tcp", e.Address, timeout)
	case models.LinkSerial:
		return serial.Open(e.Device, &serial.Mode{BaudRate: e.Baud})
	}
	return nil, errors.Errorf("unsupported link kind %q", e.Kind)
}
