package health

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/procfs"
)

// SystemStats is a point-in-time sample of host resource usage, in percent.
type SystemStats struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskPercent   float64   `json:"disk_percent"`
	SampledAt     time.Time `json:"sampled_at"`
}

// SystemSampler samples host resource usage.
type SystemSampler interface {
	Sample(ctx context.Context) (SystemStats, error)
}

// ProcSampler reads CPU and memory usage from /proc and disk usage from statfs.
//
// CPU usage is computed from the delta between two consecutive samples. The
// first sample reports usage since boot.
type ProcSampler struct {
	fs       procfs.FS
	diskPath string

	mu        sync.Mutex
	prevBusy  float64
	prevTotal float64
}

// NewProcSampler creates a sampler over the default /proc mount.
// diskPath is the filesystem whose usage is reported; empty means "/".
func NewProcSampler(diskPath string) (*ProcSampler, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &ProcSampler{fs: fs, diskPath: diskPath}, nil
}

// Sample implements SystemSampler.
func (s *ProcSampler) Sample(ctx context.Context) (SystemStats, error) {
	if err := ctx.Err(); err != nil {
		return SystemStats{}, err
	}

	cpu, err := s.cpuPercent()
	if err != nil {
		return SystemStats{}, err
	}
	mem, err := s.memoryPercent()
	if err != nil {
		return SystemStats{}, err
	}
	disk, err := diskPercent(s.diskPath)
	if err != nil {
		return SystemStats{}, err
	}

	return SystemStats{
		CPUPercent:    cpu,
		MemoryPercent: mem,
		DiskPercent:   disk,
		SampledAt:     time.Now(),
	}, nil
}

func (s *ProcSampler) cpuPercent() (float64, error) {
	stat, err := s.fs.Stat()
	if err != nil {
		return 0, fmt.Errorf("read /proc/stat: %w", err)
	}
	c := stat.CPUTotal
	idle := c.Idle + c.Iowait
	busy := c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal
	total := idle + busy

	s.mu.Lock()
	defer s.mu.Unlock()
	dBusy := busy - s.prevBusy
	dTotal := total - s.prevTotal
	s.prevBusy, s.prevTotal = busy, total

	if dTotal <= 0 {
		return 0, nil
	}
	return dBusy / dTotal * 100, nil
}

func (s *ProcSampler) memoryPercent() (float64, error) {
	mi, err := s.fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("read /proc/meminfo: %w", err)
	}
	if mi.MemTotal == nil || mi.MemAvailable == nil || *mi.MemTotal == 0 {
		return 0, nil
	}
	total := float64(*mi.MemTotal)
	avail := float64(*mi.MemAvailable)
	return (total - avail) / total * 100, nil
}

func diskPercent(path string) (float64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	used := float64(st.Blocks - st.Bfree)
	avail := float64(st.Bavail)
	if used+avail == 0 {
		return 0, nil
	}
	return used / (used + avail) * 100, nil
}
