package config

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/lixenwraith/voxphys/parameter"
)

// SetupLogging points the standard logger at logs/<file> when debug is on, and
// discards it otherwise
// The returned file is nil when logging is off; the caller closes it
func SetupLogging(cfg LogSection) (*log.Logger, *os.File, error) {
	if !cfg.Debug {
		log.SetOutput(io.Discard)
		return log.New(io.Discard, "", 0), nil, nil
	}

	name := cfg.File
	if name == "" {
		name = parameter.LogFileName
	}
	if err := os.MkdirAll(parameter.LogDir, parameter.LogDirMode); err != nil {
		return nil, nil, errors.Wrap(err, "create log dir")
	}
	path := filepath.Join(parameter.LogDir, name)
	if err := rotateLog(path); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, parameter.LogFileMode)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open log file")
	}
	log.SetOutput(f)
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	return log.New(f, "", log.Ltime|log.Lmicroseconds), f, nil
}

// rotateLog renames path to a timestamped sibling when it has grown past MaxLogSize
func rotateLog(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.Size() <= parameter.MaxLogSize {
		return nil
	}
	ext := filepath.Ext(path)
	rotated := strings.TrimSuffix(path, ext) + "-" + time.Now().Format("20060102-150405") + ext
	return errors.Wrap(os.Rename(path, rotated), "rotate log")
}
