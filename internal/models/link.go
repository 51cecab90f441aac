package models

type LinkKind string

const (
	LinkUDP    LinkKind = "udp"
	LinkTCP    LinkKind = "tcp"
	LinkSerial LinkKind = "serial"
)

type MavlinkVersion string

const (
	MavlinkV1 MavlinkVersion = "v1"
	MavlinkV2 MavlinkVersion = "v2"
)

// LinkProtocol: Address (host:port) is used by udp and tcp, Device and
// Baud by serial.
type LinkProtocol struct {
	Kind    LinkKind       `json:"kind"`
	Address string         `json:"address,omitempty"`
	Device  string         `json:"device,omitempty"`
	Baud    int            `json:"baud,omitempty"`
	Version MavlinkVersion `json:"version"`
}

type LinkDescription struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Protocol    LinkProtocol `json:"protocol"`
	Autoconnect bool         `json:"autoconnect"`
}

func (l *LinkDescription) EntityID() string      { return l.ID }
func (l *LinkDescription) SetEntityID(id string) { l.ID = id }

// LinkStatus; ID equals the link id. The zero value is the default status.
type LinkStatus struct {
	ID            string `json:"id"`
	Connected     bool   `json:"connected"`
	Online        bool   `json:"online"`
	BytesReceived uint64 `json:"bytes_received"`
	BytesSent     uint64 `json:"bytes_sent"`
}

func (l *LinkStatus) EntityID() string      { return l.ID }
func (l *LinkStatus) SetEntityID(id string) { l.ID = id }
