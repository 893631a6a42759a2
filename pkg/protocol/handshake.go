package protocol

// KeepAlive is a liveness signal. Receipt requires no action.
type KeepAlive struct{}

func (*KeepAlive) Type() MessageType            { return MsgKeepAlive }
func (*KeepAlive) encodePayload(*Encoder)       {}
func (*KeepAlive) decodePayload(*Decoder) error { return nil }

// ClientHello opens the handshake from the client side.
type ClientHello struct {
	Version uint16 // Protocol version the client speaks
	Name    string // Client identity, may be empty
}

func (*ClientHello) Type() MessageType { return MsgClientHello }

func (m *ClientHello) encodePayload(e *Encoder) {
	e.WriteUint16(m.Version)
	e.WriteString(m.Name)
}

func (m *ClientHello) decodePayload(d *Decoder) error {
	var err error
	if m.Version, err = d.ReadUint16(); err != nil {
		return err
	}
	m.Name, err = d.ReadString()
	return err
}

// ProtoUnsupported tells a client that its version was rejected.
type ProtoUnsupported struct {
	ServerVersion uint16
}

func (*ProtoUnsupported) Type() MessageType { return MsgProtoUnsupported }

func (m *ProtoUnsupported) encodePayload(e *Encoder) {
	e.WriteUint16(m.ServerVersion)
}

func (m *ProtoUnsupported) decodePayload(d *Decoder) error {
	var err error
	m.ServerVersion, err = d.ReadUint16()
	return err
}

// ServerHello is the server's first message on a new connection.
type ServerHello struct {
	ServerID string // Identity of the server
	ClientID string // Identity the server assigned to this client
}

func (*ServerHello) Type() MessageType { return MsgServerHello }

func (m *ServerHello) encodePayload(e *Encoder) {
	e.WriteString(m.ServerID)
	e.WriteString(m.ClientID)
}

func (m *ServerHello) decodePayload(d *Decoder) error {
	var err error
	if m.ServerID, err = d.ReadString(); err != nil {
		return err
	}
	m.ClientID, err = d.ReadString()
	return err
}

// ServerHelloComplete ends the server half of the handshake.
type ServerHelloComplete struct{}

func (*ServerHelloComplete) Type() MessageType            { return MsgServerHelloComplete }
func (*ServerHelloComplete) encodePayload(*Encoder)       {}
func (*ServerHelloComplete) decodePayload(*Decoder) error { return nil }

// ClientHelloComplete acknowledges ServerHello.
type ClientHelloComplete struct{}

func (*ClientHelloComplete) Type() MessageType            { return MsgClientHelloComplete }
func (*ClientHelloComplete) encodePayload(*Encoder)       {}
func (*ClientHelloComplete) decodePayload(*Decoder) error { return nil }
