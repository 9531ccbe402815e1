package agent

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	gnet "github.com/shirou/gopsutil/v4/net"

	"vmmonitor/internal/shared"
)

// Collect takes one snapshot of system metrics. CPU percentages are measured
// against the previous Collect call, so the first sample in a fresh process
// reads near zero; the collection loop calls it on a fixed interval which
// makes later samples meaningful.
func Collect(ctx context.Context, instanceID uuid.UUID) (shared.SystemMetrics, error) {
	m := shared.SystemMetrics{
		Timestamp:  time.Now().UTC(),
		InstanceID: instanceID,
	}

	perCore, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return m, err
	}
	var total float64
	for _, p := range perCore {
		total += p
	}
	m.CPUMetrics = shared.CPUMetrics{
		CoreCount:    len(perCore),
		PerCoreUsage: perCore,
	}
	if len(perCore) > 0 {
		m.CPUMetrics.UsagePercent = total / float64(len(perCore))
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return m, err
	}
	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return m, err
	}
	m.MemoryMetrics = shared.MemoryMetrics{
		TotalMemory:     vm.Total,
		UsedMemory:      vm.Used,
		AvailableMemory: vm.Available,
		TotalSwap:       swap.Total,
		UsedSwap:        swap.Used,
	}

	m.DiskMetrics = collectDisks(ctx)
	m.NetworkMetrics = collectNetworks(ctx)

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return m, err
	}
	m.SystemInfo = shared.SystemInfo{
		Hostname:      info.Hostname,
		OSName:        info.Platform,
		OSVersion:     info.PlatformVersion,
		KernelVersion: info.KernelVersion,
		Uptime:        info.Uptime,
	}

	return m, nil
}

// SampleUsage averages CPU and memory usage over roughly the given duration,
// one blocking one-second sample at a time. Used by the recommend command.
func SampleUsage(ctx context.Context, duration time.Duration) (avgCPUPercent, avgMemUsedGB float64, physicalCores int, err error) {
	seconds := int(duration.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	var cpuSum, memSum float64
	for i := 0; i < seconds; i++ {
		if err := ctx.Err(); err != nil {
			return 0, 0, 0, err
		}
		percent, err := cpu.PercentWithContext(ctx, time.Second, false)
		if err != nil {
			return 0, 0, 0, err
		}
		if len(percent) > 0 {
			cpuSum += percent[0]
		}
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return 0, 0, 0, err
		}
		memSum += float64(vm.Used)
	}

	physicalCores, err = cpu.CountsWithContext(ctx, false)
	if err != nil || physicalCores <= 0 {
		physicalCores, err = cpu.CountsWithContext(ctx, true)
		if err != nil {
			return 0, 0, 0, err
		}
	}

	n := float64(seconds)
	return cpuSum / n, memSum / n / (1 << 30), physicalCores, nil
}

func collectDisks(ctx context.Context) []shared.DiskMetric {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil
	}
	// io counters are keyed by bare device name, partitions carry /dev paths
	io, _ := disk.IOCountersWithContext(ctx)

	var out []shared.DiskMetric
	for _, p := range parts {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			continue
		}
		dm := shared.DiskMetric{
			Name:           p.Device,
			MountPoint:     p.Mountpoint,
			TotalSpace:     usage.Total,
			AvailableSpace: usage.Free,
			Filesystem:     p.Fstype,
		}
		if counters, ok := io[strings.TrimPrefix(p.Device, "/dev/")]; ok {
			dm.TotalReadBytes = counters.ReadBytes
			dm.TotalWrittenBytes = counters.WriteBytes
		}
		out = append(out, dm)
	}
	return out
}

func collectNetworks(ctx context.Context) []shared.NetworkMetric {
	counters, err := gnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil
	}
	out := make([]shared.NetworkMetric, 0, len(counters))
	for _, c := range counters {
		out = append(out, shared.NetworkMetric{
			InterfaceName:         c.Name,
			ReceivedBytesTotal:    c.BytesRecv,
			TransmittedBytesTotal: c.BytesSent,
		})
	}
	return out
}
