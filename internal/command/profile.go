package command

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fgeck/pgbackctl/internal/models"
)

// createProfileCmd registers a backup profile. flag is existsOk: an
// existing profile of the same name is left untouched.
type createProfileCmd struct {
	baseCommand
}

func (c *createProfileCmd) Execute(ctx context.Context, existsOk bool) error {
	return c.withTransaction(func() error {
		profile := c.descr.Profile
		if profile == nil || profile.Name == "" {
			return models.NewCatalogError("CREATE BACKUP PROFILE requires a profile name")
		}

		existing, err := c.rt.Catalog.GetBackupProfile(profile.Name)
		if err != nil {
			return err
		}
		if existing.ProfileID >= 0 {
			if existsOk {
				c.rt.Logger.Info().
					Str("profile", profile.Name).
					Msg("backup profile already exists")
				return nil
			}
			return models.NewCatalogError("backup profile %q already exists", profile.Name)
		}

		profile.SetAttributes([]models.AttrID{
			models.ProfileAttrName,
			models.ProfileAttrCompressType,
			models.ProfileAttrMaxRate,
			models.ProfileAttrLabel,
			models.ProfileAttrFastCheckpoint,
			models.ProfileAttrIncludeWAL,
			models.ProfileAttrWaitForWAL,
		})
		return c.rt.Catalog.CreateBackupProfile(profile)
	})
}

// dropProfileCmd removes a backup profile by name.
type dropProfileCmd struct {
	baseCommand
}

func (c *dropProfileCmd) Execute(ctx context.Context, flag bool) error {
	return c.withTransaction(func() error {
		if c.descr.Profile == nil || c.descr.Profile.Name == "" {
			return models.NewCatalogError("DROP BACKUP PROFILE requires a profile name")
		}
		return c.rt.Catalog.DropBackupProfile(c.descr.Profile.Name)
	})
}

// listProfileCmd prints the backup profiles, optionally with their
// full tunables (ListBackupProfileDetail or flag).
type listProfileCmd struct {
	baseCommand
}

func (c *listProfileCmd) Execute(ctx context.Context, detail bool) error {
	detail = detail || c.descr.Tag == models.ListBackupProfileDetail

	return c.withTransaction(func() error {
		profiles, err := c.rt.Catalog.GetBackupProfiles()
		if err != nil {
			return err
		}

		if !detail {
			fmt.Fprintf(c.out(), "%-6s\t%s\n", "ID", "NAME")
			for _, p := range profiles {
				fmt.Fprintf(c.out(), "%-6d\t%s\n", p.ProfileID, p.Name)
			}
			return nil
		}

		for _, p := range profiles {
			fmt.Fprintf(c.out(), "backup profile %q\n", p.Name)
			fmt.Fprintf(c.out(), "\t%-20s\t%s\n", "COMPRESSION", p.CompressType.String())
			fmt.Fprintf(c.out(), "\t%-20s\t%s\n", "MAX RATE", maxRateString(p.MaxRate))
			fmt.Fprintf(c.out(), "\t%-20s\t%s\n", "LABEL", p.Label)
			fmt.Fprintf(c.out(), "\t%-20s\t%t\n", "FAST CHECKPOINT", p.FastCheckpoint)
			fmt.Fprintf(c.out(), "\t%-20s\t%t\n", "INCLUDE WAL", p.IncludeWAL)
			fmt.Fprintf(c.out(), "\t%-20s\t%t\n", "WAIT FOR WAL", p.WaitForWAL)
		}
		return nil
	})
}

func maxRateString(rate uint) string {
	if rate == 0 {
		return "NOT RATED"
	}
	return strconv.FormatUint(uint64(rate), 10) + " kbps"
}
