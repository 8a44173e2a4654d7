package models

import "strconv"

// PinOperation identifies how a PIN or UNPIN command selects its base
// backups.
type PinOperation int

const (
	PinOpUndefined PinOperation = iota
	PinOpID
	PinOpCount
	PinOpNewest
	PinOpOldest
	// PinOpPinned references all currently pinned basebackups and is
	// valid for UNPIN only.
	PinOpPinned
)

// PinDescr encapsulates one PIN or UNPIN action.
type PinDescr struct {
	Tag       CatalogTag
	Operation PinOperation

	backupID int64
	count    uint
}

// NewPinDescr builds a pin descriptor for the given command tag and
// selection operation.
func NewPinDescr(tag CatalogTag, op PinOperation) *PinDescr {
	return &PinDescr{Tag: tag, Operation: op, backupID: -1}
}

// SetBackupID records the backup id a PinOpID action operates on. The
// string form accepts the parser token.
func (p *PinDescr) SetBackupID(id int64) { p.backupID = id }

// SetBackupIDString parses and records the backup id token.
func (p *PinDescr) SetBackupIDString(s string) error {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return NewCatalogError("invalid backup id %q", s)
	}
	p.backupID = id
	return nil
}

// SetCount records the number of basebackups a PinOpCount action
// applies to.
func (p *PinDescr) SetCount(n uint) { p.count = n }

// SetCountString parses and records the count token.
func (p *PinDescr) SetCountString(s string) error {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return NewCatalogError("invalid pin count %q", s)
	}
	p.count = uint(n)
	return nil
}

// BackupID returns the backup id of a PinOpID action. Calling it for
// any other operation is an error.
func (p *PinDescr) BackupID() (int64, error) {
	if p.Operation != PinOpID {
		return -1, NewCatalogError("pin action does not reference a backup id")
	}
	return p.backupID, nil
}

// Count returns the count of a PinOpCount action. Calling it for any
// other operation is an error.
func (p *PinDescr) Count() (uint, error) {
	if p.Operation != PinOpCount {
		return 0, NewCatalogError("pin action does not reference a count")
	}
	return p.count, nil
}
