package models

// CatalogTag identifies the catalog operation a descriptor carries.
type CatalogTag int

const (
	EmptyDescr CatalogTag = iota

	CreateArchive
	CreateBackupProfile
	CreateConnection
	CreateRetentionPolicy

	DropArchive
	DropBackupProfile
	DropConnection
	DropRetentionPolicy
	DropBasebackup

	AlterArchive
	VerifyArchive

	StartBasebackup
	StartLauncher
	BackgroundWorkerCommand

	ListArchive
	ListBackupProfile
	ListBackupProfileDetail
	ListBackupCatalog
	ListBackupList
	ListConnection
	ListRetentionPolicies
	ListRetentionPolicy

	PinBasebackup
	UnpinBasebackup
	ApplyRetentionPolicy

	ShowVariables
	ShowVariable
	SetVariable
	ResetVariable
)

// String returns a human readable name for the tag, used in logs and
// error messages.
func (t CatalogTag) String() string {
	switch t {
	case EmptyDescr:
		return "EMPTY"
	case CreateArchive:
		return "CREATE ARCHIVE"
	case CreateBackupProfile:
		return "CREATE BACKUP PROFILE"
	case CreateConnection:
		return "CREATE CONNECTION"
	case CreateRetentionPolicy:
		return "CREATE RETENTION POLICY"
	case DropArchive:
		return "DROP ARCHIVE"
	case DropBackupProfile:
		return "DROP BACKUP PROFILE"
	case DropConnection:
		return "DROP CONNECTION"
	case DropRetentionPolicy:
		return "DROP RETENTION POLICY"
	case DropBasebackup:
		return "DROP BASEBACKUP"
	case AlterArchive:
		return "ALTER ARCHIVE"
	case VerifyArchive:
		return "VERIFY ARCHIVE"
	case StartBasebackup:
		return "START BASEBACKUP"
	case StartLauncher:
		return "START LAUNCHER"
	case BackgroundWorkerCommand:
		return "BACKGROUND WORKER COMMAND"
	case ListArchive:
		return "LIST ARCHIVE"
	case ListBackupProfile:
		return "LIST BACKUP PROFILE"
	case ListBackupProfileDetail:
		return "LIST BACKUP PROFILE DETAIL"
	case ListBackupCatalog:
		return "LIST BACKUP CATALOG"
	case ListBackupList:
		return "LIST BASEBACKUPS"
	case ListConnection:
		return "LIST CONNECTION"
	case ListRetentionPolicies:
		return "LIST RETENTION POLICIES"
	case ListRetentionPolicy:
		return "LIST RETENTION POLICY"
	case PinBasebackup:
		return "PIN BASEBACKUP"
	case UnpinBasebackup:
		return "UNPIN BASEBACKUP"
	case ApplyRetentionPolicy:
		return "APPLY RETENTION POLICY"
	case ShowVariables:
		return "SHOW VARIABLES"
	case ShowVariable:
		return "SHOW VARIABLE"
	case SetVariable:
		return "SET VARIABLE"
	case ResetVariable:
		return "RESET VARIABLE"
	}
	return "UNKNOWN"
}

// VariableType tags the runtime type of a session variable.
type VariableType int

const (
	VarTypeUnknown VariableType = iota
	VarTypeString
	VarTypeBool
	VarTypeInteger
	VarTypeEnum
)

// CatalogDescr is the single descriptor handed from the command
// frontend to command execution. Which fields are meaningful depends
// on Tag; sub-descriptors are attached on demand via the Make methods.
type CatalogDescr struct {
	AttributeSet

	Tag CatalogTag
	ID  int64

	ArchiveName   string
	RetentionName string
	Directory     string
	Compression   bool

	BasebackupID int64

	// Job control.
	VerboseOutput       bool
	ForceSystemIDUpdate bool
	Detach              bool
	CheckConnection     bool

	Coninfo *ConnectionDescr
	Profile *BackupProfileDescr

	Retention *RetentionDescr
	Pin       *PinDescr

	RetentionParser RetentionParserState

	// Session variable payload for SHOW/SET/RESET VARIABLE.
	VarName    string
	VarType    VariableType
	VarValStr  string
	VarValBool bool
	VarValInt  int
}

// NewCatalogDescr returns an empty descriptor with sentinel ids and an
// attached connection and profile sub-descriptor.
func NewCatalogDescr() *CatalogDescr {
	return &CatalogDescr{
		Tag:          EmptyDescr,
		ID:           -1,
		BasebackupID: -1,
		Detach:       true,
		Coninfo:      NewConnectionDescr(),
		Profile:      NewBackupProfileDescr(),
	}
}

// CopyFrom copies the scalar command state, the connection and profile
// sub-descriptors and the affected attribute sets from source.
// Retention and pin sub-descriptors are not copied.
func (d *CatalogDescr) CopyFrom(source *CatalogDescr) {
	d.Tag = source.Tag
	d.ID = source.ID
	d.ArchiveName = source.ArchiveName
	d.RetentionName = source.RetentionName
	d.Directory = source.Directory
	d.Compression = source.Compression
	d.BasebackupID = source.BasebackupID

	d.VerboseOutput = source.VerboseOutput
	d.ForceSystemIDUpdate = source.ForceSystemIDUpdate
	d.Detach = source.Detach
	d.CheckConnection = source.CheckConnection

	d.SetAttributes(source.Attributes())

	if source.Coninfo != nil {
		if d.Coninfo == nil {
			d.Coninfo = NewConnectionDescr()
		}
		coninfo := *source.Coninfo
		coninfo.SetAttributes(source.Coninfo.Attributes())
		*d.Coninfo = coninfo
	}

	if source.Profile != nil {
		if d.Profile == nil {
			d.Profile = NewBackupProfileDescr()
		}
		profile := *source.Profile
		profile.SetAttributes(source.Profile.Attributes())
		*d.Profile = profile
	}

	d.VarName = source.VarName
	d.VarType = source.VarType
	d.VarValStr = source.VarValStr
	d.VarValBool = source.VarValBool
	d.VarValInt = source.VarValInt
}

// MakeRetentionDescr attaches a fresh retention sub-descriptor if none
// is present and returns it.
func (d *CatalogDescr) MakeRetentionDescr() *RetentionDescr {
	if d.Retention == nil {
		d.Retention = NewRetentionDescr()
	}
	return d.Retention
}

// MakePinDescr attaches a pin sub-descriptor for the given operation.
// The descriptor's tag must already be set to PIN_BASEBACKUP or
// UNPIN_BASEBACKUP.
func (d *CatalogDescr) MakePinDescr(op PinOperation) (*PinDescr, error) {
	if d.Tag != PinBasebackup && d.Tag != UnpinBasebackup {
		return nil, NewCatalogError("pin action requires a PIN or UNPIN command")
	}
	if op == PinOpPinned && d.Tag != UnpinBasebackup {
		return nil, NewCatalogError("PINNED selection is valid for UNPIN only")
	}
	d.Pin = NewPinDescr(d.Tag, op)
	return d.Pin, nil
}

// AddRetentionRule appends a rule assembled from the current parser
// state with the given value to the retention sub-descriptor.
func (d *CatalogDescr) AddRetentionRule(value string) error {
	ruleID := d.RetentionParser.RuleID()
	if ruleID == RetentionNoRule {
		return NewCatalogError("incomplete retention rule")
	}
	rd := d.MakeRetentionDescr()
	rule := &RetentionRuleDescr{ID: -1, Type: ruleID, Value: value}
	rd.Rules = append(rd.Rules, rule)
	d.RetentionParser = RetentionParserState{}
	return nil
}

// SetVariableString records a string valued SET VARIABLE payload.
func (d *CatalogDescr) SetVariableString(name, value string) {
	d.VarName = name
	d.VarType = VarTypeString
	d.VarValStr = value
}

// SetVariableBool records a boolean valued SET VARIABLE payload.
func (d *CatalogDescr) SetVariableBool(name string, value bool) {
	d.VarName = name
	d.VarType = VarTypeBool
	d.VarValBool = value
}

// SetVariableInt records an integer valued SET VARIABLE payload.
func (d *CatalogDescr) SetVariableInt(name string, value int) {
	d.VarName = name
	d.VarType = VarTypeInteger
	d.VarValInt = value
}
