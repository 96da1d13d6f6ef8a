package market

// ConnectionState of a streaming session. It only drives presentation.
type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
)

func (s ConnectionState) String() string {
	return string(s)
}
