package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/tphakala/healthmon/internal/conf"
	"github.com/tphakala/healthmon/internal/logger"
)

// MountGroup is a set of monitored paths sharing one filesystem
type MountGroup struct {
	MountPoint string   // e.g. "/"
	Device     string   // e.g. "/dev/sda1"
	Fstype     string   // e.g. "ext4"
	Paths      []string // monitored paths on this mount
}

// mountPointFor returns the partition holding path, resolving symlinks first
func mountPointFor(path string, partitions []disk.PartitionStat) (disk.PartitionStat, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if _, statErr := os.Stat(path); statErr != nil {
			return disk.PartitionStat{}, fmt.Errorf("path does not exist: %s: %w", path, err)
		}
		resolved = path
	}

	var best disk.PartitionStat
	bestLen := 0
	for _, p := range partitions {
		mp := p.Mountpoint
		if !strings.HasPrefix(resolved, mp) {
			continue
		}
		if resolved == mp || len(mp) == 1 || strings.HasPrefix(resolved, mp+"/") {
			if len(mp) > bestLen {
				best = p
				bestLen = len(mp)
			}
		}
	}
	if bestLen == 0 {
		return disk.PartitionStat{}, fmt.Errorf("no mount point found for path: %s", path)
	}
	return best, nil
}

// groupPathsByMountPoint groups paths by filesystem so a shared mount is
// measured once
func groupPathsByMountPoint(ctx context.Context, paths []string) ([]MountGroup, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get partitions: %w", err)
	}
	return groupPathsWithPartitions(paths, partitions), nil
}

func groupPathsWithPartitions(paths []string, partitions []disk.PartitionStat) []MountGroup {
	groups := make(map[string]*MountGroup)
	for _, path := range paths {
		p, err := mountPointFor(path, partitions)
		if err != nil {
			GetLogger().Debug("skipping disk path", logger.String("path", path), logger.Error(err))
			continue
		}
		if g, ok := groups[p.Mountpoint]; ok {
			g.Paths = append(g.Paths, path)
			continue
		}
		groups[p.Mountpoint] = &MountGroup{
			MountPoint: p.Mountpoint,
			Device:     p.Device,
			Fstype:     p.Fstype,
			Paths:      []string{path},
		}
	}

	result := make([]MountGroup, 0, len(groups))
	for _, g := range groups {
		slices.Sort(g.Paths)
		result = append(result, *g)
	}
	slices.SortFunc(result, func(a, b MountGroup) int {
		return strings.Compare(a.MountPoint, b.MountPoint)
	})
	return result
}

// MonitoredDiskPaths returns the configured disk paths plus the directories
// healthmon itself writes to: the SQLite database and the log file.
func MonitoredDiskPaths(settings *conf.Settings) []string {
	paths := slices.Clone(settings.Monitoring.DiskPaths)
	paths = append(paths, "/")

	if settings.Database.Driver == "sqlite" && settings.Database.SQLite.Path != "" {
		paths = append(paths, filepath.Dir(resolvePath(settings.Database.SQLite.Path)))
	}
	if fo := settings.Logging.FileOutput; fo != nil && fo.Enabled && fo.Path != "" {
		paths = append(paths, filepath.Dir(resolvePath(fo.Path)))
	}
	return deduplicatePaths(paths)
}

func resolvePath(path string) string {
	path = filepath.Clean(os.ExpandEnv(path))
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return path
}

// deduplicatePaths cleans paths, makes them absolute and drops repeats,
// keeping first occurrence order
func deduplicatePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	unique := make([]string, 0, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		cleaned := resolvePath(path)
		if !seen[cleaned] {
			seen[cleaned] = true
			unique = append(unique, cleaned)
		}
	}
	return unique
}
