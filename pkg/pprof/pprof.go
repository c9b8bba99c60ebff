package pprof

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Profiler writes a CPU profile for the lifetime of a command and a heap profile when it stops.
type Profiler struct {
	dir     string
	cpuFile *os.File
}

// DefaultDir is where profiles go when --pprof-path is not given.
func DefaultDir(home string) string {
	return filepath.Join(home, ".systemlogs-timeline")
}

// Start begins CPU profiling into dir/cpu.pprof.
func Start(dir string) (*Profiler, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get user home directory")
		}
		dir = DefaultDir(home)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create pprof directory")
	}

	cpuPath := filepath.Join(dir, "cpu.pprof")
	f, err := os.Create(cpuPath)
	if err != nil {
		return nil, errors.Wrap(err, "could not create CPU profile file")
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "could not start CPU profile")
	}
	log.Debug().Str("path", cpuPath).Msg("CPU profiling started")
	return &Profiler{dir: dir, cpuFile: f}, nil
}

// Stop ends CPU profiling and writes dir/memory.pprof.
func (p *Profiler) Stop() {
	if p == nil {
		return
	}
	pprof.StopCPUProfile()
	if err := p.cpuFile.Close(); err != nil {
		log.Error().Err(err).Msg("can't close CPU profile")
	}

	memPath := filepath.Join(p.dir, "memory.pprof")
	f, err := os.Create(memPath)
	if err != nil {
		log.Error().Err(err).Str("path", memPath).Msg("could not create memory profile file")
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Error().Err(err).Str("path", memPath).Msg("can't close memory profile")
		}
	}()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Error().Err(err).Str("path", memPath).Msg("could not write memory profile")
		return
	}
	log.Debug().Str("path", memPath).Msg("memory profile written")
}
