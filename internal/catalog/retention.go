package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/jackc/pglogrepl"

	"github.com/fgeck/pgbackctl/internal/models"
)

// CreateRetentionPolicy inserts a retention policy with its ordered
// rules and stores the generated ids in the descriptor.
func (c *Catalog) CreateRetentionPolicy(retention *models.RetentionDescr) error {
	w, err := c.writer()
	if err != nil {
		return err
	}
	if retention.Name == "" {
		return models.NewCatalogError("retention policy name must not be empty")
	}
	if len(retention.Rules) == 0 {
		return models.NewCatalogError("retention policy %q has no rules", retention.Name)
	}

	if retention.Created == "" {
		retention.Created = CatalogNow()
	}

	res, err := w.Exec(
		`INSERT INTO retention (name, created) VALUES (?, ?)`,
		retention.Name, retention.Created)
	if err != nil {
		return &models.CatalogError{
			Op:  fmt.Sprintf("create retention policy %q", retention.Name),
			Err: err,
		}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return &models.CatalogError{Op: "resolve retention policy id", Err: err}
	}
	retention.ID = id

	for _, rule := range retention.Rules {
		res, err := w.Exec(
			`INSERT INTO retention_rules (retention_id, type, value) VALUES (?, ?, ?)`,
			id, int(rule.Type), rule.Value)
		if err != nil {
			return &models.CatalogError{Op: "create retention rule", Err: err}
		}
		ruleID, err := res.LastInsertId()
		if err != nil {
			return &models.CatalogError{Op: "resolve retention rule id", Err: err}
		}
		rule.ID = ruleID
	}

	c.logger.Info().
		Str("policy", retention.Name).
		Int("rules", len(retention.Rules)).
		Msg("retention policy registered")
	return nil
}

// GetRetentionPolicy looks up a policy by name, rules included. The
// returned descriptor carries the sentinel ID -1 when the name is
// unknown.
func (c *Catalog) GetRetentionPolicy(name string) (*models.RetentionDescr, error) {
	q, err := c.reader()
	if err != nil {
		return nil, err
	}

	retention := models.NewRetentionDescr()
	err = q.QueryRow(
		`SELECT id, name, created FROM retention WHERE name = ?`, name).
		Scan(&retention.ID, &retention.Name, &retention.Created)
	if errors.Is(err, sql.ErrNoRows) {
		retention.ID = -1
		return retention, nil
	}
	if err != nil {
		return nil, &models.CatalogError{Op: "lookup retention policy", Err: err}
	}

	if retention.Rules, err = c.getRetentionRules(q, retention.ID); err != nil {
		return nil, err
	}
	return retention, nil
}

// GetRetentionPolicies returns all policies ordered by name, rules
// included.
func (c *Catalog) GetRetentionPolicies() ([]*models.RetentionDescr, error) {
	q, err := c.reader()
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(`SELECT id, name, created FROM retention ORDER BY name`)
	if err != nil {
		return nil, &models.CatalogError{Op: "list retention policies", Err: err}
	}
	defer rows.Close()

	var result []*models.RetentionDescr
	for rows.Next() {
		retention := models.NewRetentionDescr()
		if err := rows.Scan(&retention.ID, &retention.Name, &retention.Created); err != nil {
			return nil, &models.CatalogError{Op: "scan retention row", Err: err}
		}
		result = append(result, retention)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.CatalogError{Op: "list retention policies", Err: err}
	}

	for _, retention := range result {
		if retention.Rules, err = c.getRetentionRules(q, retention.ID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (c *Catalog) getRetentionRules(q querier, retentionID int64) ([]*models.RetentionRuleDescr, error) {
	rows, err := q.Query(
		`SELECT id, type, value FROM retention_rules
		 WHERE retention_id = ? ORDER BY id`, retentionID)
	if err != nil {
		return nil, &models.CatalogError{Op: "list retention rules", Err: err}
	}
	defer rows.Close()

	var rules []*models.RetentionRuleDescr
	for rows.Next() {
		rule := &models.RetentionRuleDescr{}
		var ruleType int
		if err := rows.Scan(&rule.ID, &ruleType, &rule.Value); err != nil {
			return nil, &models.CatalogError{Op: "scan retention rule row", Err: err}
		}
		rule.Type = models.RetentionRuleID(ruleType)
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.CatalogError{Op: "list retention rules", Err: err}
	}
	return rules, nil
}

// DropRetentionPolicy removes the policy by name. Rules cascade.
func (c *Catalog) DropRetentionPolicy(name string) error {
	w, err := c.writer()
	if err != nil {
		return err
	}
	res, err := w.Exec(`DELETE FROM retention WHERE name = ?`, name)
	if err != nil {
		return &models.CatalogError{Op: fmt.Sprintf("drop retention policy %q", name), Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewCatalogError("retention policy %q does not exist", name)
	}
	return nil
}

// ApplyRetentionPolicy evaluates the policy rules against the ready
// basebackups of the archive and returns the cleanup plan. Backups are
// ordered newest first; pinned backups are always kept and drag the
// WAL eviction boundary of their timeline with them. The catalog is
// not modified, executing the plan is the caller's job.
func (c *Catalog) ApplyRetentionPolicy(retention *models.RetentionDescr, archiveID int64) (*models.BackupCleanupDescr, error) {
	all, err := c.GetBackupList(archiveID)
	if err != nil {
		return nil, err
	}

	var backups []*models.BaseBackupDescr
	for _, backup := range all {
		if backup.Status == models.BackupStatusReady {
			backups = append(backups, backup)
		}
	}

	cleanup := &models.BackupCleanupDescr{
		Basebackups: backups,
		Decisions:   make([]models.BasebackupCleanupMode, len(backups)),
		OffList:     make(map[int32]*models.XlogCleanupOff),
		Mode:        models.NoWALToDelete,
	}
	if len(backups) == 0 {
		return cleanup, nil
	}

	for i := range cleanup.Decisions {
		cleanup.Decisions[i] = models.BasebackupKeep
	}

	for _, rule := range retention.Rules {
		if err := applyRetentionRule(rule, backups, cleanup.Decisions); err != nil {
			return nil, err
		}
	}

	// Pinned backups survive every rule.
	deletions := 0
	for i, backup := range backups {
		if backup.Pinned > 0 {
			cleanup.Decisions[i] = models.BasebackupKeep
		}
		if cleanup.Decisions[i] == models.BasebackupDelete {
			backup.ElectedForDeletion = true
			deletions++
		}
	}

	if deletions == 0 {
		return cleanup, nil
	}
	if deletions == len(backups) {
		cleanup.Mode = models.WALCleanupAll
		return cleanup, nil
	}

	cleanup.Mode = models.WALCleanupOffset
	for i, backup := range backups {
		if cleanup.Decisions[i] != models.BasebackupKeep {
			continue
		}
		lsn, err := pglogrepl.ParseLSN(backup.XlogPos)
		if err != nil {
			return nil, models.NewCatalogError("basebackup %d carries invalid WAL position %q",
				backup.ID, backup.XlogPos)
		}
		off, ok := cleanup.OffList[backup.Timeline]
		if !ok {
			off = &models.XlogCleanupOff{
				Timeline:       backup.Timeline,
				WALSegmentSize: backup.WALSegmentSize,
				WALCleanupEnd:  lsn,
			}
			cleanup.OffList[backup.Timeline] = off
		}
		// The boundary never crosses the start of a kept backup.
		if lsn < off.WALCleanupEnd {
			off.WALCleanupEnd = lsn
		}
	}
	return cleanup, nil
}

func applyRetentionRule(rule *models.RetentionRuleDescr, backups []*models.BaseBackupDescr,
	decisions []models.BasebackupCleanupMode) error {

	switch rule.Type {
	case models.RetentionKeepWithLabel, models.RetentionDropWithLabel:
		re, err := regexp.Compile(rule.Value)
		if err != nil {
			return models.NewCatalogError("invalid label expression %q", rule.Value)
		}
		keepMatching := rule.Type == models.RetentionKeepWithLabel
		for i, backup := range backups {
			if re.MatchString(backup.Label) != keepMatching {
				decisions[i] = models.BasebackupDelete
			}
		}

	case models.RetentionKeepNum, models.RetentionDropNum:
		n, err := strconv.Atoi(rule.Value)
		if err != nil || n < 0 {
			return models.NewCatalogError("invalid retention count %q", rule.Value)
		}
		for i := n; i < len(backups); i++ {
			decisions[i] = models.BasebackupDelete
		}

	case models.RetentionKeepNewerByDatetime, models.RetentionKeepOlderByDatetime,
		models.RetentionDropNewerByDatetime, models.RetentionDropOlderByDatetime:
		interval, err := models.ParseRetentionInterval(rule.Value)
		if err != nil {
			return err
		}
		cutoff := interval.ApplyTo(time.Now(), true)
		dropNewer := rule.Type == models.RetentionKeepOlderByDatetime ||
			rule.Type == models.RetentionDropNewerByDatetime
		for i, backup := range backups {
			started, err := time.Parse(CatalogTimeLayout, backup.Started)
			if err != nil {
				return models.NewCatalogError("basebackup %d carries invalid start time %q",
					backup.ID, backup.Started)
			}
			newer := started.After(cutoff)
			if newer == dropNewer {
				decisions[i] = models.BasebackupDelete
			}
		}

	case models.RetentionPin, models.RetentionUnpin, models.RetentionCleanup:
		// These rules select no backups; the decisions stay unchanged.

	default:
		return models.NewCatalogError("unsupported retention rule %d", rule.Type)
	}
	return nil
}
