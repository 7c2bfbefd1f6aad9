package monitor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/tphakala/healthmon/internal/errors"
	"github.com/tphakala/healthmon/internal/logger"
)

var errNoDiskPaths = errors.NewStd("no accessible disk paths")

// SystemResourceProbe reads host usage through gopsutil. Disk usage is the
// fullest filesystem among the monitored paths.
type SystemResourceProbe struct {
	paths []string
	log   logger.Logger

	mu             sync.Mutex
	validatedMount map[string]bool

	// cpu.Percent with a zero interval measures since its previous call, so
	// back-to-back readings are served from the last sample
	cpuMu      sync.Mutex
	cpuLast    float64
	cpuAt      time.Time
	cpuPercent func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
	now        func() time.Time
}

const (
	// minCPUSampleInterval is the shortest window a CPU reading covers
	minCPUSampleInterval = time.Second
	// firstCPUSampleWindow is measured when there is no earlier sample
	firstCPUSampleWindow = 250 * time.Millisecond
)

// NewSystemResourceProbe creates a probe for the given disk paths; an empty
// list monitors the root filesystem.
func NewSystemResourceProbe(diskPaths []string) *SystemResourceProbe {
	if len(diskPaths) == 0 {
		diskPaths = []string{"/"}
	}
	return &SystemResourceProbe{
		paths:          diskPaths,
		log:            GetLogger().Module("probe"),
		validatedMount: make(map[string]bool),
		cpuPercent:     cpu.PercentWithContext,
		now:            time.Now,
	}
}

// CPUPercent returns CPU usage since the previous sample. Calls within
// minCPUSampleInterval of the last sample return that sample; the first
// call blocks for firstCPUSampleWindow to get a meaningful reading.
func (p *SystemResourceProbe) CPUPercent(ctx context.Context) ProbeResult[float64] {
	p.cpuMu.Lock()
	defer p.cpuMu.Unlock()

	if !p.cpuAt.IsZero() && p.now().Sub(p.cpuAt) < minCPUSampleInterval {
		return Ok(p.cpuLast)
	}

	var interval time.Duration
	if p.cpuAt.IsZero() {
		interval = firstCPUSampleWindow
	}
	percents, err := p.cpuPercent(ctx, interval, false)
	if err != nil {
		return Failed[float64](fmt.Errorf("cpu percent: %w", err))
	}
	if len(percents) == 0 {
		return Failed[float64](errors.NewStd("cpu percent: no samples"))
	}
	p.cpuLast, p.cpuAt = percents[0], p.now()
	return Ok(p.cpuLast)
}

func (p *SystemResourceProbe) MemoryPercent(ctx context.Context) ProbeResult[float64] {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Failed[float64](fmt.Errorf("virtual memory: %w", err))
	}
	return Ok(vm.UsedPercent)
}

func (p *SystemResourceProbe) MemoryDetail(ctx context.Context) ProbeResult[MemoryDetail] {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Failed[MemoryDetail](fmt.Errorf("virtual memory: %w", err))
	}
	return Ok(MemoryDetail{UsedBytes: vm.Used, TotalBytes: vm.Total})
}

func (p *SystemResourceProbe) DiskPercent(ctx context.Context) ProbeResult[float64] {
	usage, err := p.fullestMount(ctx)
	if err != nil {
		return Failed[float64](err)
	}
	return Ok(usage.UsedPercent)
}

func (p *SystemResourceProbe) DiskDetail(ctx context.Context) ProbeResult[DiskDetail] {
	usage, err := p.fullestMount(ctx)
	if err != nil {
		return Failed[DiskDetail](err)
	}
	return Ok(DiskDetail{MountPoint: usage.Path, UsedBytes: usage.Used, TotalBytes: usage.Total})
}

func (p *SystemResourceProbe) NetworkIO(ctx context.Context) ProbeResult[NetworkIO] {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return Failed[NetworkIO](fmt.Errorf("network counters: %w", err))
	}
	if len(counters) == 0 {
		return Failed[NetworkIO](errors.NewStd("network counters: no interfaces"))
	}
	return Ok(NetworkIO{BytesSent: counters[0].BytesSent, BytesRecv: counters[0].BytesRecv})
}

func (p *SystemResourceProbe) CPUInfo() CPUInfo {
	return CPUInfo{Model: cpuid.CPU.BrandName, LogicalCores: cpuid.CPU.LogicalCores}
}

// fullestMount measures each mount group once and returns the one with the
// highest usage
func (p *SystemResourceProbe) fullestMount(ctx context.Context) (*disk.UsageStat, error) {
	mounts := p.mountPoints(ctx)

	var worst *disk.UsageStat
	var errs []error
	for _, mp := range mounts {
		if !p.mountAccessible(mp) {
			continue
		}
		usage, err := disk.UsageWithContext(ctx, mp)
		if err != nil {
			errs = append(errs, fmt.Errorf("disk usage %s: %w", mp, err))
			continue
		}
		if worst == nil || usage.UsedPercent > worst.UsedPercent {
			worst = usage
		}
	}
	if worst == nil {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, errNoDiskPaths
	}
	return worst, nil
}

func (p *SystemResourceProbe) mountPoints(ctx context.Context) []string {
	groups, err := groupPathsByMountPoint(ctx, p.paths)
	if err != nil {
		p.log.Debug("mount grouping failed, checking paths individually", logger.Error(err))
		return p.paths
	}
	mounts := make([]string, 0, len(groups))
	for _, g := range groups {
		mounts = append(mounts, g.MountPoint)
	}
	return mounts
}

// mountAccessible caches the first stat of each mount point
func (p *SystemResourceProbe) mountAccessible(mountPoint string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ok, seen := p.validatedMount[mountPoint]; seen {
		return ok
	}
	_, err := os.Stat(mountPoint)
	if err != nil {
		p.log.Error("mount point is not accessible",
			logger.String("mount_point", mountPoint),
			logger.Error(err))
	}
	p.validatedMount[mountPoint] = err == nil
	return err == nil
}
