package protocol

// EntryFlags is the per-entry flag bitset.
type EntryFlags uint8

const (
	FlagPersistent EntryFlags = 0x01
)

// Has returns true if the flags contain the specified flag.
func (f EntryFlags) Has(flag EntryFlags) bool {
	return f&flag != 0
}

// EntryAssignment binds a name to a connection-local entry ID and carries
// its initial value.
type EntryAssignment struct {
	Name  string
	ID    uint16
	Seq   uint16
	Flags EntryFlags
	Value Value
}

func (*EntryAssignment) Type() MessageType { return MsgEntryAssignment }

func (m *EntryAssignment) encodePayload(e *Encoder) {
	e.WriteString(m.Name)
	e.WriteByte(byte(m.Value.Type))
	e.WriteUint16(m.ID)
	e.WriteUint16(m.Seq)
	e.WriteByte(byte(m.Flags))
	e.WriteValue(m.Value)
}

func (m *EntryAssignment) decodePayload(d *Decoder) error {
	var err error
	if m.Name, err = d.ReadString(); err != nil {
		return err
	}
	t, err := d.ReadValueType()
	if err != nil {
		return err
	}
	if m.ID, err = d.ReadUint16(); err != nil {
		return err
	}
	if m.Seq, err = d.ReadUint16(); err != nil {
		return err
	}
	flags, err := d.ReadByte()
	if err != nil {
		return err
	}
	m.Flags = EntryFlags(flags)
	m.Value, err = d.ReadValue(t)
	return err
}

// EntryUpdate carries a new value for an assigned entry ID. The value type
// travels with it so the receiver can decode without knowing the entry.
type EntryUpdate struct {
	ID    uint16
	Seq   uint16
	Value Value
}

func (*EntryUpdate) Type() MessageType { return MsgEntryUpdate }

func (m *EntryUpdate) encodePayload(e *Encoder) {
	e.WriteUint16(m.ID)
	e.WriteUint16(m.Seq)
	e.WriteByte(byte(m.Value.Type))
	e.WriteValue(m.Value)
}

func (m *EntryUpdate) decodePayload(d *Decoder) error {
	var err error
	if m.ID, err = d.ReadUint16(); err != nil {
		return err
	}
	if m.Seq, err = d.ReadUint16(); err != nil {
		return err
	}
	t, err := d.ReadValueType()
	if err != nil {
		return err
	}
	m.Value, err = d.ReadValue(t)
	return err
}

// FlagsUpdate replaces the flags of an assigned entry ID.
type FlagsUpdate struct {
	ID    uint16
	Flags EntryFlags
}

func (*FlagsUpdate) Type() MessageType { return MsgFlagsUpdate }

func (m *FlagsUpdate) encodePayload(e *Encoder) {
	e.WriteUint16(m.ID)
	e.WriteByte(byte(m.Flags))
}

func (m *FlagsUpdate) decodePayload(d *Decoder) error {
	var err error
	if m.ID, err = d.ReadUint16(); err != nil {
		return err
	}
	b, err := d.ReadByte()
	m.Flags = EntryFlags(b)
	return err
}

// EntryDelete removes an assigned entry ID.
type EntryDelete struct {
	ID uint16
}

func (*EntryDelete) Type() MessageType { return MsgEntryDelete }

func (m *EntryDelete) encodePayload(e *Encoder) {
	e.WriteUint16(m.ID)
}

func (m *EntryDelete) decodePayload(d *Decoder) error {
	var err error
	m.ID, err = d.ReadUint16()
	return err
}

// ClearEntries removes every entry on the receiving side.
type ClearEntries struct{}

func (*ClearEntries) Type() MessageType            { return MsgClearEntries }
func (*ClearEntries) encodePayload(*Encoder)       {}
func (*ClearEntries) decodePayload(*Decoder) error { return nil }
