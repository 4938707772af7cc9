// Package sysinfo collects the one-time machine snapshot a session sends
// with its first message.
package sysinfo

import (
	"context"
	"encoding/json"
	"os"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/allaspectsdev/promptstudio/internal/version"
)

// Snapshot is the system_data document. Probes that fail leave their
// fields zero and add a line to Errors.
type Snapshot struct {
	Hostname        string   `json:"hostname,omitempty"`
	OS              string   `json:"os"`
	Arch            string   `json:"arch"`
	Platform        string   `json:"platform,omitempty"`
	PlatformVersion string   `json:"platform_version,omitempty"`
	KernelVersion   string   `json:"kernel_version,omitempty"`
	Virtualization  string   `json:"virtualization,omitempty"`
	UptimeSeconds   uint64   `json:"uptime_seconds,omitempty"`
	CPUModel        string   `json:"cpu_model,omitempty"`
	CPUCores        int      `json:"cpu_cores,omitempty"`
	CPUThreads      int      `json:"cpu_threads,omitempty"`
	MemoryTotal     uint64   `json:"memory_total,omitempty"`
	MemoryTotalText string   `json:"memory_total_text,omitempty"`
	MemoryUsedPct   float64  `json:"memory_used_percent,omitempty"`
	DiskTotal       uint64   `json:"disk_total,omitempty"`
	DiskFree        uint64   `json:"disk_free,omitempty"`
	DiskFreeText    string   `json:"disk_free_text,omitempty"`
	Load1           float64  `json:"load1,omitempty"`
	Load5           float64  `json:"load5,omitempty"`
	Load15          float64  `json:"load15,omitempty"`
	Shell           string   `json:"shell,omitempty"`
	GoVersion       string   `json:"go_version"`
	Client          string   `json:"client"`
	Errors          []string `json:"errors,omitempty"`
}

// Collect probes the machine. It never fails outright; every probe error
// is recorded on the snapshot instead.
func Collect(ctx context.Context) *Snapshot {
	s := &Snapshot{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Shell:     os.Getenv("SHELL"),
		GoVersion: runtime.Version(),
		Client:    version.String(),
	}

	if info, err := host.InfoWithContext(ctx); err != nil {
		s.fail("host", err)
	} else {
		s.Hostname = info.Hostname
		s.Platform = info.Platform
		s.PlatformVersion = info.PlatformVersion
		s.KernelVersion = info.KernelVersion
		s.Virtualization = info.VirtualizationSystem
		s.UptimeSeconds = info.Uptime
	}

	if infos, err := cpu.InfoWithContext(ctx); err != nil {
		s.fail("cpu", err)
	} else if len(infos) > 0 {
		s.CPUModel = infos[0].ModelName
	}
	if n, err := cpu.CountsWithContext(ctx, false); err == nil {
		s.CPUCores = n
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		s.CPUThreads = n
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		s.fail("memory", err)
	} else {
		s.MemoryTotal = vm.Total
		s.MemoryTotalText = humanize.IBytes(vm.Total)
		s.MemoryUsedPct = vm.UsedPercent
	}

	if usage, err := disk.UsageWithContext(ctx, rootPath()); err != nil {
		s.fail("disk", err)
	} else {
		s.DiskTotal = usage.Total
		s.DiskFree = usage.Free
		s.DiskFreeText = humanize.IBytes(usage.Free)
	}

	if runtime.GOOS != "windows" {
		if avg, err := load.AvgWithContext(ctx); err != nil {
			s.fail("load", err)
		} else {
			s.Load1, s.Load5, s.Load15 = avg.Load1, avg.Load5, avg.Load15
		}
	}

	return s
}

func (s *Snapshot) fail(probe string, err error) {
	s.Errors = append(s.Errors, probe+": "+err.Error())
}

// JSON encodes the snapshot as a system_data document.
func (s *Snapshot) JSON() (json.RawMessage, error) {
	return json.Marshal(s)
}

func rootPath() string {
	if runtime.GOOS == "windows" {
		return `C:\`
	}
	return "/"
}
