package system

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// find in root
func findFileInProjectRoot(filename string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, filename)); err == nil {
			return dir, nil
		}
		parentDir := filepath.Dir(dir)
		if parentDir == dir { // reached the filesystem root
			break
		}
		dir = parentDir
	}
	return "", os.ErrNotExist
}

// LoadEnv loads KEY=VALUE lines from filename into the environment. If the file
// is not in the working directory the parent directories are searched.
// Variables that are already set win over the file, so the shell can override it.
func LoadEnv(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		rootDir, rootErr := findFileInProjectRoot(filename)
		if rootErr != nil {
			return rootErr
		}
		f, err = os.Open(filepath.Join(rootDir, filename))
		if err != nil {
			return err
		}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue // not KEY=VALUE
		}
		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))

		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}
