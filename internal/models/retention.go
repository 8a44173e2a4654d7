package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pglogrepl"
)

// RetentionRuleID classifies the supported retention rules and their
// actions. The numeric groups are part of the catalog representation.
type RetentionRuleID int

const (
	RetentionNoRule RetentionRuleID = 0

	RetentionKeepWithLabel RetentionRuleID = 200
	RetentionDropWithLabel RetentionRuleID = 201

	RetentionKeepNum RetentionRuleID = 300
	RetentionDropNum RetentionRuleID = 301

	RetentionKeepNewerByDatetime RetentionRuleID = 400
	RetentionKeepOlderByDatetime RetentionRuleID = 401
	RetentionDropNewerByDatetime RetentionRuleID = 402
	RetentionDropOlderByDatetime RetentionRuleID = 403

	RetentionPin   RetentionRuleID = 500
	RetentionUnpin RetentionRuleID = 600

	RetentionCleanup RetentionRuleID = 700
)

// String returns the command syntax rendering of the rule id.
func (id RetentionRuleID) String() string {
	switch id {
	case RetentionKeepWithLabel:
		return "KEEP WITH LABEL"
	case RetentionDropWithLabel:
		return "DROP WITH LABEL"
	case RetentionKeepNum:
		return "KEEP"
	case RetentionDropNum:
		return "DROP"
	case RetentionKeepNewerByDatetime:
		return "KEEP NEWER THAN"
	case RetentionKeepOlderByDatetime:
		return "KEEP OLDER THAN"
	case RetentionDropNewerByDatetime:
		return "DROP NEWER THAN"
	case RetentionDropOlderByDatetime:
		return "DROP OLDER THAN"
	case RetentionPin:
		return "PIN"
	case RetentionUnpin:
		return "UNPIN"
	case RetentionCleanup:
		return "CLEANUP"
	}
	return "NO RULE"
}

// RetentionParsedAction is a parser state describing whether a DROP or
// KEEP action was seen. It has no catalog representation.
type RetentionParsedAction int

const (
	RetentionNoAction RetentionParsedAction = iota
	RetentionActionDrop
	RetentionActionKeep
)

// RetentionParsedModifier is a parser state describing the rule
// modifier seen so far. It has no catalog representation.
type RetentionParsedModifier int

const (
	RetentionNoModifier RetentionParsedModifier = iota
	RetentionModifierNewerDatetime
	RetentionModifierOlderDatetime
	RetentionModifierLabel
	RetentionModifierNum
	RetentionModifierCleanup
)

// RetentionParserState accumulates action and modifier while a
// retention command is parsed.
type RetentionParserState struct {
	Action   RetentionParsedAction
	Modifier RetentionParsedModifier
}

// RuleID assembles the final rule id from the parser state.
func (s RetentionParserState) RuleID() RetentionRuleID {
	if s.Modifier == RetentionModifierCleanup {
		return RetentionCleanup
	}

	switch s.Action {
	case RetentionActionKeep:
		switch s.Modifier {
		case RetentionModifierLabel:
			return RetentionKeepWithLabel
		case RetentionModifierNum:
			return RetentionKeepNum
		case RetentionModifierNewerDatetime:
			return RetentionKeepNewerByDatetime
		case RetentionModifierOlderDatetime:
			return RetentionKeepOlderByDatetime
		}
	case RetentionActionDrop:
		switch s.Modifier {
		case RetentionModifierLabel:
			return RetentionDropWithLabel
		case RetentionModifierNum:
			return RetentionDropNum
		case RetentionModifierNewerDatetime:
			return RetentionDropNewerByDatetime
		case RetentionModifierOlderDatetime:
			return RetentionDropOlderByDatetime
		}
	}
	return RetentionNoRule
}

// RetentionRuleDescr is the catalog representation of one retention
// rule.
type RetentionRuleDescr struct {
	AttributeSet

	ID    int64
	Type  RetentionRuleID
	Value string
}

// RetentionDescr is the catalog representation of a retention policy
// with its ordered rules.
type RetentionDescr struct {
	AttributeSet

	ID      int64
	Name    string
	Created string
	Rules   []*RetentionRuleDescr
}

// NewRetentionDescr returns a retention descriptor with the sentinel
// id.
func NewRetentionDescr() *RetentionDescr {
	return &RetentionDescr{ID: -1}
}

var intervalUnits = map[string]bool{
	"years":   true,
	"months":  true,
	"days":    true,
	"hours":   true,
	"minutes": true,
}

// RetentionIntervalOperand is a single signed operand of an interval
// expression, e.g. "+3 days".
type RetentionIntervalOperand struct {
	Sign  int // +1 or -1
	Value int
	Unit  string
}

// String returns the operand in its catalog representation.
func (o RetentionIntervalOperand) String() string {
	sign := "+"
	if o.Sign < 0 {
		sign = "-"
	}
	return fmt.Sprintf("%s%d %s", sign, o.Value, o.Unit)
}

// RetentionIntervalDescr represents a retention interval expression of
// the shape
//
//	N years|N months|N days|N hours|N minutes
//
// composable by addition and subtraction. The compiled form is
// reparseable and its operands map directly onto SQLite datetime
// modifiers.
type RetentionIntervalDescr struct {
	Operands []RetentionIntervalOperand
}

// ParseRetentionInterval parses an interval expression. Operands may
// carry explicit signs, unsigned operands are additive.
func ParseRetentionInterval(expression string) (*RetentionIntervalDescr, error) {
	d := &RetentionIntervalDescr{}
	if err := d.Push(expression); err != nil {
		return nil, err
	}
	return d, nil
}

// Push tokenizes the expression and appends its operands.
func (d *RetentionIntervalDescr) Push(expression string) error {
	tokens := strings.Fields(expression)
	if len(tokens) == 0 {
		return NewCatalogError("empty retention interval expression")
	}
	if len(tokens)%2 != 0 {
		return NewCatalogError("malformed retention interval expression %q", expression)
	}

	for i := 0; i < len(tokens); i += 2 {
		num, unit := tokens[i], tokens[i+1]

		sign := 1
		switch {
		case strings.HasPrefix(num, "+"):
			num = num[1:]
		case strings.HasPrefix(num, "-"):
			sign = -1
			num = num[1:]
		}

		value, err := strconv.Atoi(num)
		if err != nil || value < 0 {
			return NewCatalogError("invalid interval value %q", tokens[i])
		}
		if !intervalUnits[unit] {
			return NewCatalogError("invalid interval unit %q", unit)
		}

		d.Operands = append(d.Operands, RetentionIntervalOperand{
			Sign:  sign,
			Value: value,
			Unit:  unit,
		})
	}
	return nil
}

// PushAdd appends the operand expression additively.
func (d *RetentionIntervalDescr) PushAdd(operand string) error {
	return d.pushSigned(operand, 1)
}

// PushSub appends the operand expression subtractively.
func (d *RetentionIntervalDescr) PushSub(operand string) error {
	return d.pushSigned(operand, -1)
}

func (d *RetentionIntervalDescr) pushSigned(operand string, sign int) error {
	other := &RetentionIntervalDescr{}
	if err := other.Push(operand); err != nil {
		return err
	}
	for _, op := range other.Operands {
		op.Sign *= sign
		d.Operands = append(d.Operands, op)
	}
	return nil
}

// Add returns a new interval holding the operands of both descriptors.
func (d *RetentionIntervalDescr) Add(other *RetentionIntervalDescr) *RetentionIntervalDescr {
	out := &RetentionIntervalDescr{Operands: append([]RetentionIntervalOperand(nil), d.Operands...)}
	out.Operands = append(out.Operands, other.Operands...)
	return out
}

// Sub returns a new interval subtracting the other descriptor's
// operands.
func (d *RetentionIntervalDescr) Sub(other *RetentionIntervalDescr) *RetentionIntervalDescr {
	out := &RetentionIntervalDescr{Operands: append([]RetentionIntervalOperand(nil), d.Operands...)}
	for _, op := range other.Operands {
		op.Sign *= -1
		out.Operands = append(out.Operands, op)
	}
	return out
}

// Compile returns the interval in its catalog representation. The
// result reparses into an equal descriptor.
func (d *RetentionIntervalDescr) Compile() string {
	parts := make([]string, 0, len(d.Operands))
	for _, op := range d.Operands {
		parts = append(parts, op.String())
	}
	return strings.Join(parts, " ")
}

// OperandsAsString returns the plain operand string without signs,
// suitable for display.
func (d *RetentionIntervalDescr) OperandsAsString() string {
	parts := make([]string, 0, len(d.Operands))
	for _, op := range d.Operands {
		parts = append(parts, fmt.Sprintf("%d %s", op.Value, op.Unit))
	}
	return strings.Join(parts, " ")
}

// SQLiteDatetime returns a datetime() call with one placeholder per
// operand. The operand values are not encoded, the caller binds them
// separately via DatetimeBindArgs.
func (d *RetentionIntervalDescr) SQLiteDatetime() string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(d.Operands)), ", ")
	return fmt.Sprintf("datetime('now', %s)", placeholders)
}

// DatetimeBindArgs returns the SQLite datetime modifiers for each
// operand. With negate set, all signs are flipped, turning an interval
// into a cutoff in the past.
func (d *RetentionIntervalDescr) DatetimeBindArgs(negate bool) []string {
	args := make([]string, 0, len(d.Operands))
	for _, op := range d.Operands {
		sign := op.Sign
		if negate {
			sign *= -1
		}
		prefix := "+"
		if sign < 0 {
			prefix = "-"
		}
		args = append(args, fmt.Sprintf("%s%d %s", prefix, op.Value, op.Unit))
	}
	return args
}

// ApplyTo shifts the given time by the interval. With negate set the
// interval is applied backwards.
func (d *RetentionIntervalDescr) ApplyTo(t time.Time, negate bool) time.Time {
	out := t
	for _, op := range d.Operands {
		sign := op.Sign
		if negate {
			sign *= -1
		}
		n := sign * op.Value
		switch op.Unit {
		case "years":
			out = out.AddDate(n, 0, 0)
		case "months":
			out = out.AddDate(0, n, 0)
		case "days":
			out = out.AddDate(0, 0, n)
		case "hours":
			out = out.Add(time.Duration(n) * time.Hour)
		case "minutes":
			out = out.Add(time.Duration(n) * time.Minute)
		}
	}
	return out
}

// WALCleanupMode describes how the WAL eviction boundary of a cleanup
// descriptor is to be interpreted.
type WALCleanupMode int

const (
	NoWALToDelete WALCleanupMode = iota
	WALCleanupRange
	WALCleanupOffset
	WALCleanupAll
)

// BasebackupCleanupMode is the per-list decision of a cleanup
// descriptor.
type BasebackupCleanupMode int

const (
	NoBasebackups BasebackupCleanupMode = iota
	BasebackupKeep
	BasebackupDelete
)

// XlogCleanupOff describes the WAL cleanup threshold of one timeline.
type XlogCleanupOff struct {
	Timeline        int32
	WALSegmentSize  uint64
	WALCleanupStart pglogrepl.LSN
	WALCleanupEnd   pglogrepl.LSN
}

// BackupCleanupDescr describes which basebackups and WAL segment
// ranges can be evicted from an archive. Basebackups are ordered
// newest first; Decisions holds the per-backup keep/delete election
// parallel to Basebackups. The WAL boundary of a timeline never
// crosses the start position of a kept or pinned basebackup.
type BackupCleanupDescr struct {
	Basebackups []*BaseBackupDescr
	Decisions   []BasebackupCleanupMode
	OffList     map[int32]*XlogCleanupOff
	Mode        WALCleanupMode
}
