package deploy

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rocketdoo/rkd/internal/config"
	"github.com/rocketdoo/rkd/internal/execx"
	"github.com/rocketdoo/rkd/internal/module"
)

// pythonSyntaxTimeout bounds one interpreter run over a module.
const pythonSyntaxTimeout = 2 * time.Minute

// pythonSyntaxScript parses every file given as argument without running
// it and prints "path<TAB>line<TAB>message" for each failure.
const pythonSyntaxScript = `import ast, sys
for p in sys.argv[1:]:
    try:
        with open(p, 'rb') as f:
            ast.parse(f.read(), p)
    except SyntaxError as e:
        print('%s\t%s\t%s' % (p, e.lineno or 0, e.msg))
    except (ValueError, OSError) as e:
        print('%s\t0\t%s' % (p, e))
`

// ModuleValidator runs the checks named by a validation policy.
type ModuleValidator struct {
	Policy  config.ValidationPolicy
	Runner  execx.Runner
	Journal *Journal

	// Python is the interpreter used for syntax checks.
	Python string
}

// Validate returns one message per problem across all modules. A missing
// Python interpreter downgrades the syntax check to a journal warning.
func (v *ModuleValidator) Validate(ctx context.Context, mods []*module.Module) []string {
	var errs []string
	if len(v.Policy) == 0 {
		return errs
	}

	pythonAvailable := true
	if v.Policy.Enabled(config.CheckPythonSyntax) {
		if v.Runner == nil || !execx.Available(v.Runner, v.python()) {
			pythonAvailable = false
			v.Journal.Warning(fmt.Sprintf("%s not found, skipping Python syntax check", v.python()))
		}
	}

	for _, m := range mods {
		if v.Policy.Enabled(config.CheckManifest) && !m.HasManifest() {
			errs = append(errs, fmt.Sprintf("%s: %s not found", m.Name, module.ManifestFile))
		}
		if v.Policy.Enabled(config.CheckPythonSyntax) && pythonAvailable {
			errs = append(errs, v.checkPython(ctx, m)...)
		}
		if v.Policy.Enabled(config.CheckXMLSyntax) {
			errs = append(errs, checkXML(m)...)
		}
	}
	return errs
}

func (v *ModuleValidator) python() string {
	if v.Python != "" {
		return v.Python
	}
	return "python3"
}

func (v *ModuleValidator) checkPython(ctx context.Context, m *module.Module) []string {
	files, err := filesWithExt(m.Path, ".py")
	if err != nil {
		return []string{fmt.Sprintf("%s: listing Python files: %v", m.Name, err)}
	}
	if len(files) == 0 {
		return nil
	}

	res, err := v.Runner.Run(ctx, execx.Command{
		Name:    v.python(),
		Args:    append([]string{"-c", pythonSyntaxScript}, files...),
		Dir:     m.Path,
		Timeout: pythonSyntaxTimeout,
		Op:      "python syntax check of " + m.Name,
	})
	if err != nil {
		return []string{fmt.Sprintf("%s: %v", m.Name, err)}
	}
	if !res.OK() {
		return []string{fmt.Sprintf("%s: python syntax check failed: %s", m.Name, res.Output())}
	}

	var errs []string
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		errs = append(errs, fmt.Sprintf("%s: Syntax error in %s: %s (line %s)",
			m.Name, filepath.Base(parts[0]), parts[2], parts[1]))
	}
	return errs
}

func checkXML(m *module.Module) []string {
	files, err := filesWithExt(m.Path, ".xml")
	if err != nil {
		return []string{fmt.Sprintf("%s: listing XML files: %v", m.Name, err)}
	}
	var errs []string
	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(m.Path, rel))
		if err == nil {
			err = WellFormedXML(data)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: Invalid XML in %s: %v", m.Name, filepath.Base(rel), err))
		}
	}
	return errs
}

// WellFormedXML reports whether data is a well-formed document with exactly
// one root element.
func WellFormedXML(data []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true
	depth, roots := 0, 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
				if roots > 1 {
					line, _ := dec.InputPos()
					return fmt.Errorf("line %d: junk after document element", line)
				}
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				line, _ := dec.InputPos()
				return fmt.Errorf("line %d: text outside the document element", line)
			}
		}
	}
	if roots == 0 {
		return errors.New("no element found")
	}
	return nil
}

// filesWithExt lists files under root with ext, relative to root, sorted.
func filesWithExt(root, ext string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ext) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	sort.Strings(files)
	return files, err
}
