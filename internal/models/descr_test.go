package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCatalogDescrDefaults(t *testing.T) {
	d := NewCatalogDescr()

	assert.Equal(t, EmptyDescr, d.Tag)
	assert.Equal(t, int64(-1), d.ID)
	assert.Equal(t, int64(-1), d.BasebackupID)
	assert.True(t, d.Detach)

	require.NotNil(t, d.Coninfo)
	assert.Equal(t, ConnectionTypeUnknown, d.Coninfo.Type)

	require.NotNil(t, d.Profile)
	assert.Equal(t, DefaultBackupLabel, d.Profile.Label)
	assert.True(t, d.Profile.WaitForWAL)

	assert.Nil(t, d.Retention)
	assert.Nil(t, d.Pin)
}

func TestCatalogDescrCopyFrom(t *testing.T) {
	src := NewCatalogDescr()
	src.Tag = CreateArchive
	src.ID = 42
	src.ArchiveName = "pg1"
	src.Directory = "/srv/backup/pg1"
	src.Compression = true
	src.Detach = false
	src.PushAttribute(ArchiveAttrName)
	src.PushAttribute(ArchiveAttrDirectory)

	src.Coninfo.PGHost = "db.local"
	src.Coninfo.PGPort = 5433
	src.Coninfo.PushAttribute(ConnAttrPGHost)

	src.Profile.Name = "zstd-fast"
	src.Profile.CompressType = CompressTypeZstd
	src.Profile.PushAttribute(ProfileAttrName)

	dst := NewCatalogDescr()
	dst.CopyFrom(src)

	assert.Equal(t, CreateArchive, dst.Tag)
	assert.Equal(t, int64(42), dst.ID)
	assert.Equal(t, "pg1", dst.ArchiveName)
	assert.Equal(t, "/srv/backup/pg1", dst.Directory)
	assert.True(t, dst.Compression)
	assert.False(t, dst.Detach)
	assert.Equal(t, []AttrID{ArchiveAttrName, ArchiveAttrDirectory}, dst.Attributes())

	require.NotNil(t, dst.Coninfo)
	assert.Equal(t, "db.local", dst.Coninfo.PGHost)
	assert.Equal(t, 5433, dst.Coninfo.PGPort)
	assert.True(t, dst.Coninfo.HasAttribute(ConnAttrPGHost))

	require.NotNil(t, dst.Profile)
	assert.Equal(t, "zstd-fast", dst.Profile.Name)
	assert.Equal(t, CompressTypeZstd, dst.Profile.CompressType)
	assert.True(t, dst.Profile.HasAttribute(ProfileAttrName))

	// Sub-descriptor copies are detached from the source.
	dst.Coninfo.PGHost = "other"
	assert.Equal(t, "db.local", src.Coninfo.PGHost)
}

func TestCatalogDescrCopyFromSkipsRetentionAndPin(t *testing.T) {
	src := NewCatalogDescr()
	src.Tag = PinBasebackup
	src.MakeRetentionDescr()
	_, err := src.MakePinDescr(PinOpNewest)
	require.NoError(t, err)

	dst := NewCatalogDescr()
	dst.CopyFrom(src)

	assert.Nil(t, dst.Retention)
	assert.Nil(t, dst.Pin)
}

func TestMakePinDescrRequiresPinTag(t *testing.T) {
	d := NewCatalogDescr()
	d.Tag = ListArchive

	_, err := d.MakePinDescr(PinOpNewest)
	assert.Error(t, err)
}

func TestMakePinDescrPinnedOnlyForUnpin(t *testing.T) {
	d := NewCatalogDescr()
	d.Tag = PinBasebackup

	_, err := d.MakePinDescr(PinOpPinned)
	assert.Error(t, err)

	d.Tag = UnpinBasebackup
	pin, err := d.MakePinDescr(PinOpPinned)
	require.NoError(t, err)
	assert.Equal(t, PinOpPinned, pin.Operation)
}

func TestAddRetentionRule(t *testing.T) {
	d := NewCatalogDescr()
	d.Tag = CreateRetentionPolicy
	d.RetentionParser = RetentionParserState{
		Action:   RetentionActionKeep,
		Modifier: RetentionModifierNum,
	}

	require.NoError(t, d.AddRetentionRule("3"))

	require.NotNil(t, d.Retention)
	require.Len(t, d.Retention.Rules, 1)
	assert.Equal(t, RetentionKeepNum, d.Retention.Rules[0].Type)
	assert.Equal(t, "3", d.Retention.Rules[0].Value)

	// The parser state resets after each rule.
	assert.Equal(t, RetentionParserState{}, d.RetentionParser)
}

func TestAddRetentionRuleIncompleteState(t *testing.T) {
	d := NewCatalogDescr()
	d.RetentionParser = RetentionParserState{Action: RetentionActionKeep}

	assert.Error(t, d.AddRetentionRule("x"))
	assert.Nil(t, d.Retention)
}

func TestPinDescrAccessors(t *testing.T) {
	p := NewPinDescr(PinBasebackup, PinOpID)
	require.NoError(t, p.SetBackupIDString("17"))

	id, err := p.BackupID()
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)

	_, err = p.Count()
	assert.Error(t, err)

	p = NewPinDescr(UnpinBasebackup, PinOpCount)
	require.NoError(t, p.SetCountString("4"))

	n, err := p.Count()
	require.NoError(t, err)
	assert.Equal(t, uint(4), n)

	_, err = p.BackupID()
	assert.Error(t, err)

	assert.Error(t, p.SetCountString("many"))
	assert.Error(t, p.SetBackupIDString("bogus"))
}

func TestAttributeSetPushDeduplicates(t *testing.T) {
	var s AttributeSet
	s.PushAttribute(ArchiveAttrName)
	s.PushAttribute(ArchiveAttrDirectory)
	s.PushAttribute(ArchiveAttrName)

	assert.Equal(t, []AttrID{ArchiveAttrName, ArchiveAttrDirectory}, s.Attributes())
	assert.True(t, s.HasAttribute(ArchiveAttrDirectory))
	assert.False(t, s.HasAttribute(ArchiveAttrCompression))

	s.ClearAttributes()
	assert.Empty(t, s.Attributes())
}
