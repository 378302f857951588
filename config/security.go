package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Limits on configuration input.
const (
	maxConfigSize = 10 << 20
	maxJSONDepth  = 100
	maxEnvVarLen  = 10000
	maxPathLen    = 4096
)

var configExts = map[string]bool{".json": true, ".yaml": true, ".yml": true}

// checkConfigPath accepts JSON and YAML paths. Relative paths may not climb
// out of the working directory.
func checkConfigPath(path string) error {
	switch {
	case path == "":
		return errors.New("empty config path")
	case len(path) > maxPathLen:
		return fmt.Errorf("path too long: %d > %d", len(path), maxPathLen)
	case !configExts[strings.ToLower(filepath.Ext(path))]:
		return fmt.Errorf("only JSON or YAML config files allowed: %s", path)
	}
	if filepath.IsAbs(path) {
		return nil
	}
	if clean := filepath.Clean(path); clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path traversal not allowed: %s resolves outside working directory", path)
	}
	return nil
}

func readConfigFile(path string) ([]byte, error) {
	if err := checkConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}

	data, err := io.ReadAll(io.LimitReader(f, maxConfigSize+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > maxConfigSize {
		return nil, fmt.Errorf("config file larger than %d bytes", maxConfigSize)
	}
	return data, nil
}

// writeConfigFile writes owner-only, since configs may carry NATS secrets.
func writeConfigFile(path string, data []byte) error {
	if err := checkConfigPath(path); err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}
	if len(data) > maxConfigSize {
		return fmt.Errorf("config data larger than %d bytes", maxConfigSize)
	}
	return os.WriteFile(path, data, 0o600)
}

func checkEnvValue(key, value string) error {
	if len(value) > maxEnvVarLen {
		return fmt.Errorf("%s too long: %d > %d", key, len(value), maxEnvVarLen)
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("null byte in %s", key)
	}
	return nil
}

// checkJSONDepth walks the token stream and fails past maxJSONDepth levels
// of nesting, before the document is decoded into maps.
func checkJSONDepth(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("malformed JSON: %w", err)
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > maxJSONDepth {
				return fmt.Errorf("JSON nesting too deep: %d > %d", depth, maxJSONDepth)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}
