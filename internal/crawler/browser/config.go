package browser

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
)

// Config holds pool- and task-level settings for the browser worker pool.
type Config struct {
	Concurrency    string // "auto" or an integer string
	Headless       bool
	SoftTimeout    time.Duration
	HardTimeout    time.Duration
	SettleInterval time.Duration
	MaxRetries     int
	BlockedResourceTypes []string
	UserAgent      string
}

// DefaultBlockedResourceTypes is the resource-type denylist per §4.6:
// image/font/media/texttrack/eventsource/manifest/other are refused;
// scripts, stylesheets, XHR, and WebSocket are always allowed through.
var DefaultBlockedResourceTypes = []string{
	"Image", "Font", "Media", "TextTrack", "EventSource", "Manifest", "Other",
}

func (c *Config) Validate() error {
	if c.Concurrency != "auto" {
		n, err := strconv.Atoi(c.Concurrency)
		if err != nil || n <= 0 {
			return fmt.Errorf("concurrency must be 'auto' or a positive integer")
		}
	}
	if c.SoftTimeout <= 0 || c.HardTimeout <= 0 {
		return fmt.Errorf("soft and hard timeouts must be positive")
	}
	if c.HardTimeout <= c.SoftTimeout {
		return fmt.Errorf("hard timeout must exceed soft timeout")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if len(c.BlockedResourceTypes) == 0 {
		c.BlockedResourceTypes = DefaultBlockedResourceTypes
	}
	return nil
}

// PoolSize resolves "auto" against available RAM: (total - 2GB reserved) /
// 500MB per browser instance, clamped to [2, 50].
func (c *Config) PoolSize() int {
	if c.Concurrency != "auto" {
		if n, err := strconv.Atoi(c.Concurrency); err == nil && n > 0 {
			return n
		}
	}
	return autoPoolSize()
}

func autoPoolSize() int {
	var totalRAM int64 = 8 * 1024 * 1024 * 1024
	if v, err := mem.VirtualMemory(); err == nil {
		totalRAM = int64(v.Total)
	}

	const reserved = 2 * 1024 * 1024 * 1024
	const perInstance = 500 * 1024 * 1024

	size := int((totalRAM - reserved) / perInstance)
	if size < 2 {
		size = 2
	}
	if size > 50 {
		size = 50
	}
	return size
}
