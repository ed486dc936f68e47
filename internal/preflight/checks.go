package preflight

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"seebeck/internal/config"
	"seebeck/internal/instrument"
)

// minFreeBytes is the least free space the data disk may have before the
// check fails. Sample tables grow slowly, so 200 MiB is plenty of headroom.
const minFreeBytes = 200 << 20

// CheckConfig validates the loaded configuration.
func CheckConfig(cfg *config.Config) Result {
	const name = "Configuration"
	if err := cfg.Validate(); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: "valid"}
}

// CheckDirectoryAccess verifies the directory exists (creating it if needed)
// and is readable and writable.
func CheckDirectoryAccess(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDiskSpace verifies the filesystem holding path has room for the run
// database and report output.
func CheckDiskSpace(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if free < minFreeBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%d MiB free, need %d MiB)", path, free>>20, int64(minFreeBytes)>>20)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d MiB free)", path, free>>20)}
}

// CheckInstrument verifies the configured instrument can be opened and read.
func CheckInstrument(ctx context.Context, cfg *config.Config) Result {
	const name = "Instrument"

	switch cfg.Instrument.Driver {
	case "sim":
		rig := instrument.NewSimRig(cfg)
		defer rig.Close()
		reading, err := rig.Read(ctx)
		if err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("sim read failed: %v", err)}
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("sim ready (ambient %.1f °C)", reading.TAmbientC)}
	case "serial":
		device := cfg.Instrument.SerialDevice
		if device == "" {
			return Result{Name: name, Detail: "serial driver selected but no serial_device configured"}
		}
		info, err := os.Stat(device)
		if err != nil {
			if os.IsNotExist(err) {
				return Result{Name: name, Detail: fmt.Sprintf("%s not present (is the DAQ plugged in?)", device)}
			}
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", device, err)}
		}
		if info.Mode()&os.ModeCharDevice == 0 {
			return Result{Name: name, Detail: fmt.Sprintf("%s is not a character device", device)}
		}
		if err := unix.Access(device, unix.R_OK|unix.W_OK); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", device, err)}
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s present", device)}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unknown instrument driver %q", cfg.Instrument.Driver)}
	}
}
