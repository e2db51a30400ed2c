package stats

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/bowerhall/docsage/internal/cache"
	"github.com/bowerhall/docsage/internal/logger"
)

// Counter reports the size of one store. A nil Counter is skipped.
type Counter func(ctx context.Context) (int, error)

// Sources are the things a Report is collected from.
type Sources struct {
	Chunks   Counter
	Facts    Counter
	Memories Counter
	Sessions Counter
	Cache    *cache.Cache

	ChatModel  string
	EmbedModel string
	DataDir    string
}

type Host struct {
	Hostname   string  `json:"hostname"`
	OS         string  `json:"os"`
	Arch       string  `json:"arch"`
	MemTotal   uint64  `json:"mem_total"`
	MemUsed    uint64  `json:"mem_used"`
	MemUsage   float64 `json:"mem_usage"`
	ProcessRSS uint64  `json:"process_rss"`
	DiskPath   string  `json:"disk_path,omitempty"`
	DiskUsed   uint64  `json:"disk_used,omitempty"`
	DiskFree   uint64  `json:"disk_free,omitempty"`
}

type Report struct {
	Chunks     int         `json:"chunks"`
	Facts      int         `json:"facts"`
	Memories   int         `json:"memories"`
	Sessions   int         `json:"sessions"`
	Cache      cache.Stats `json:"cache"`
	ChatModel  string      `json:"chat_model"`
	EmbedModel string      `json:"embed_model"`
	Host       Host        `json:"host"`
}

// Collect builds a report. Failing counters and host probes are logged and
// left at zero.
func Collect(ctx context.Context, src Sources) Report {
	r := Report{
		Chunks:     count(ctx, "chunks", src.Chunks),
		Facts:      count(ctx, "facts", src.Facts),
		Memories:   count(ctx, "memories", src.Memories),
		Sessions:   count(ctx, "sessions", src.Sessions),
		ChatModel:  src.ChatModel,
		EmbedModel: src.EmbedModel,
		Host:       host(ctx, src.DataDir),
	}
	if src.Cache != nil {
		r.Cache = src.Cache.Stats()
	}
	return r
}

func count(ctx context.Context, name string, c Counter) int {
	if c == nil {
		return 0
	}
	n, err := c(ctx)
	if err != nil {
		logger.Warn("stats counter failed", "counter", name, "error", err)
		return 0
	}
	return n
}

func host(ctx context.Context, dataDir string) Host {
	hostname, _ := os.Hostname()
	h := Host{Hostname: hostname, OS: runtime.GOOS, Arch: runtime.GOARCH}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		h.MemTotal = vm.Total
		h.MemUsed = vm.Used
		h.MemUsage = vm.UsedPercent
	} else {
		logger.Debug("virtual memory probe failed", "error", err)
	}

	if p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil {
			h.ProcessRSS = mi.RSS
		}
	}

	if dataDir != "" {
		if du, err := disk.UsageWithContext(ctx, dataDir); err == nil {
			h.DiskPath = dataDir
			h.DiskUsed = du.Used
			h.DiskFree = du.Free
		} else {
			logger.Debug("disk probe failed", "path", dataDir, "error", err)
		}
	}

	return h
}

// String renders the report for chat and terminal output.
func (r Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Documents: %d chunks\n", r.Chunks)
	fmt.Fprintf(&sb, "Facts: %d\n", r.Facts)
	fmt.Fprintf(&sb, "Memories: %d\n", r.Memories)
	fmt.Fprintf(&sb, "Sessions: %d\n", r.Sessions)
	fmt.Fprintf(&sb, "Cache: %d hits, %d misses, %d errors (%.1f%% hit rate)\n",
		r.Cache.Hits, r.Cache.Misses, r.Cache.Errors, r.Cache.HitRate*100)
	fmt.Fprintf(&sb, "Models: chat=%s embed=%s\n", orNone(r.ChatModel), orNone(r.EmbedModel))
	fmt.Fprintf(&sb, "Host: %s %s/%s, memory %s of %s (%.1f%%), process RSS %s",
		r.Host.Hostname, r.Host.OS, r.Host.Arch,
		bytes(r.Host.MemUsed), bytes(r.Host.MemTotal), r.Host.MemUsage, bytes(r.Host.ProcessRSS))
	if r.Host.DiskPath != "" {
		fmt.Fprintf(&sb, "\nDisk (%s): %s used, %s free", r.Host.DiskPath, bytes(r.Host.DiskUsed), bytes(r.Host.DiskFree))
	}
	return sb.String()
}

// Log writes the report as one structured line.
func (r Report) Log() {
	logger.Info("stats",
		"chunks", r.Chunks,
		"facts", r.Facts,
		"memories", r.Memories,
		"sessions", r.Sessions,
		"cache_hits", r.Cache.Hits,
		"cache_misses", r.Cache.Misses,
		"cache_hit_rate", r.Cache.HitRate,
		"process_rss", r.Host.ProcessRSS,
		"mem_usage", r.Host.MemUsage,
	)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func bytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
