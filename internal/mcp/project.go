package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// manifest reads the project name out of one well-known build file.
type manifest struct {
	file  string
	kind  string
	parse func(data []byte) (string, error)
}

// manifests are probed in order; the first one that yields a name wins.
var manifests = []manifest{
	{"go.mod", "go", goModuleName},
	{"package.json", "node", jsonPackageName},
	{"pyproject.toml", "python", pyprojectName},
	{"Cargo.toml", "rust", cargoName},
	{"composer.json", "php", jsonPackageName},
}

// DetectProject names the project at root from its build manifest. Without
// a readable manifest the directory name is used and Type is "unknown".
func DetectProject(root string, logger *slog.Logger) ProjectInfo {
	if logger == nil {
		logger = slog.Default()
	}
	for _, m := range manifests {
		data, err := os.ReadFile(filepath.Join(root, m.file))
		if err != nil {
			continue
		}
		name, err := m.parse(data)
		if err != nil {
			logger.Debug("project_manifest_unreadable",
				slog.String("file", m.file),
				slog.String("error", err.Error()))
			continue
		}
		if name != "" {
			return ProjectInfo{Name: name, RootPath: root, Type: m.kind}
		}
	}
	return ProjectInfo{Name: filepath.Base(root), RootPath: root, Type: "unknown"}
}

// goModuleName returns the last element of the module path.
func goModuleName(data []byte) (string, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 && fields[0] == "module" {
			return path.Base(strings.Trim(fields[1], `"`)), nil
		}
	}
	return "", sc.Err()
}

// jsonPackageName strips the scope or vendor from "@org/name" and
// "vendor/name".
func jsonPackageName(data []byte) (string, error) {
	var pkg struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return "", err
	}
	if i := strings.LastIndexByte(pkg.Name, '/'); i >= 0 {
		return pkg.Name[i+1:], nil
	}
	return pkg.Name, nil
}

// pyprojectName prefers the [project] table and falls back to
// [tool.poetry].
func pyprojectName(data []byte) (string, error) {
	var py struct {
		Project struct {
			Name string `toml:"name"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Name string `toml:"name"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if err := toml.Unmarshal(data, &py); err != nil {
		return "", err
	}
	if py.Project.Name != "" {
		return py.Project.Name, nil
	}
	return py.Tool.Poetry.Name, nil
}

func cargoName(data []byte) (string, error) {
	var cargo struct {
		Package struct {
			Name string `toml:"name"`
		} `toml:"package"`
	}
	err := toml.Unmarshal(data, &cargo)
	return cargo.Package.Name, err
}
