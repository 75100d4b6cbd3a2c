package render

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	theme "github.com/goliatone/go-theme"
	"gopkg.in/yaml.v3"

	"wedsite/internal/site"
)

//go:embed themes/*.yaml
var builtinThemes embed.FS

// DefaultTheme is used when a site has not picked one yet.
const DefaultTheme = "classic"

var (
	ErrUnknownTheme   = errors.New("render: unknown theme")
	ErrUnknownVariant = errors.New("render: unknown theme variant")
)

// manifestFile 是主题 YAML 文件的结构，加载后转换为 go-theme 的 Manifest。
type manifestFile struct {
	Name     string            `yaml:"name"`
	Version  string            `yaml:"version"`
	Tokens   map[string]string `yaml:"tokens"`
	Assets   assetsFile        `yaml:"assets"`
	Variants map[string]struct {
		Tokens map[string]string `yaml:"tokens"`
		Assets assetsFile        `yaml:"assets"`
	} `yaml:"variants"`
}

type assetsFile struct {
	Prefix string            `yaml:"prefix"`
	Files  map[string]string `yaml:"files"`
}

func (m manifestFile) manifest() *theme.Manifest {
	out := &theme.Manifest{
		Name:    m.Name,
		Version: m.Version,
		Tokens:  m.Tokens,
		Assets:  theme.Assets{Prefix: m.Assets.Prefix, Files: m.Assets.Files},
	}
	if len(m.Variants) > 0 {
		out.Variants = make(map[string]theme.Variant, len(m.Variants))
		for name, v := range m.Variants {
			out.Variants[name] = theme.Variant{
				Tokens: v.Tokens,
				Assets: theme.Assets{Prefix: v.Assets.Prefix, Files: v.Assets.Files},
			}
		}
	}
	return out
}

// ParseManifest decodes one YAML theme manifest.
func ParseManifest(data []byte) (*theme.Manifest, error) {
	var mf manifestFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("decode theme manifest: %w", err)
	}
	if strings.TrimSpace(mf.Name) == "" {
		return nil, errors.New("theme manifest without name")
	}
	return mf.manifest(), nil
}

// ThemeStyles resolves theme selections and derives per-section renderer
// configuration from them. It satisfies theme.ThemeSelector.
type ThemeStyles struct {
	mu        sync.RWMutex
	registry  interface{ Register(*theme.Manifest) error }
	manifests map[string]*theme.Manifest
}

var _ theme.ThemeSelector = (*ThemeStyles)(nil)

// NewThemeStyles loads the built-in manifests plus every *.yaml file in dir
// (dir may be empty).
func NewThemeStyles(dir string) (*ThemeStyles, error) {
	ts := &ThemeStyles{registry: theme.NewRegistry(), manifests: make(map[string]*theme.Manifest)}
	if err := ts.loadFS(builtinThemes, "themes"); err != nil {
		return nil, err
	}
	if dir != "" {
		if err := ts.loadFS(os.DirFS(dir), "."); err != nil {
			return nil, err
		}
	}
	return ts, nil
}

func (ts *ThemeStyles) loadFS(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("read theme dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(root, e.Name()))
		if err != nil {
			return fmt.Errorf("read theme %s: %w", e.Name(), err)
		}
		m, err := ParseManifest(data)
		if err != nil {
			return fmt.Errorf("theme %s: %w", e.Name(), err)
		}
		if err := ts.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// Register adds a manifest. A later manifest with the same name replaces
// the lookup entry.
func (ts *ThemeStyles) Register(m *theme.Manifest) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, exists := ts.manifests[m.Name]; !exists {
		if err := ts.registry.Register(m); err != nil {
			return fmt.Errorf("register theme %s: %w", m.Name, err)
		}
	}
	ts.manifests[m.Name] = m
	return nil
}

// Names lists the registered themes.
func (ts *ThemeStyles) Names() []string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	names := make([]string, 0, len(ts.manifests))
	for n := range ts.manifests {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Select implements theme.ThemeSelector. An empty name picks the default theme.
func (ts *ThemeStyles) Select(name, variant string, _ ...theme.QueryOption) (*theme.Selection, error) {
	if name == "" {
		name = DefaultTheme
	}
	ts.mu.RLock()
	m, ok := ts.manifests[name]
	ts.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTheme, name)
	}
	if variant != "" {
		if _, ok := m.Variants[variant]; !ok {
			return nil, fmt.Errorf("%w: %s/%s", ErrUnknownVariant, name, variant)
		}
	}
	return &theme.Selection{Theme: name, Variant: variant, Manifest: m}, nil
}

// Bind resolves the template's global settings into a StyleLookup. Unknown
// themes or variants fall back to the default theme with no variant.
func (ts *ThemeStyles) Bind(g site.Global) (*BoundStyles, error) {
	sel, err := ts.Select(g.Theme, g.Variant)
	if err != nil {
		fallback, ferr := ts.Select(DefaultTheme, "")
		if ferr != nil {
			return nil, errors.Join(err, ferr)
		}
		return &BoundStyles{sel: fallback, font: g.FontFamily}, err
	}
	return &BoundStyles{sel: sel, font: g.FontFamily}, nil
}

// BoundStyles is a StyleLookup for one theme selection.
type BoundStyles struct {
	sel  *theme.Selection
	font string
}

// Root returns the page-level configuration with no section overrides.
func (b *BoundStyles) Root() *theme.RendererConfig {
	return b.config(nil)
}

// Style returns the configuration for sec; the section's own colours win
// over theme tokens.
func (b *BoundStyles) Style(sec *site.Section) *theme.RendererConfig {
	return b.config(sec)
}

func (b *BoundStyles) config(sec *site.Section) *theme.RendererConfig {
	m := b.sel.Manifest
	tokens := make(map[string]string, len(m.Tokens)+4)
	for k, v := range m.Tokens {
		tokens[k] = v
	}
	files := make(map[string]string, len(m.Assets.Files))
	for k, v := range m.Assets.Files {
		files[k] = v
	}
	prefix := m.Assets.Prefix
	if v, ok := m.Variants[b.sel.Variant]; ok {
		for k, val := range v.Tokens {
			tokens[k] = val
		}
		for k, val := range v.Assets.Files {
			files[k] = val
		}
		if v.Assets.Prefix != "" {
			prefix = v.Assets.Prefix
		}
	}
	if b.font != "" {
		tokens["font-body"] = b.font
	}
	if sec != nil {
		if sec.Style.BackgroundColor != "" {
			tokens["section-bg"] = sec.Style.BackgroundColor
		}
		if sec.Style.TextColor != "" {
			tokens["section-fg"] = sec.Style.TextColor
		}
	}

	vars := make(map[string]string, len(tokens))
	for k, v := range tokens {
		vars["--"+k] = v
	}
	return &theme.RendererConfig{
		Theme:   b.sel.Theme,
		Variant: b.sel.Variant,
		Tokens:  tokens,
		CSSVars: vars,
		AssetURL: func(name string) string {
			file, ok := files[name]
			if !ok {
				return ""
			}
			return strings.TrimRight(prefix, "/") + "/" + file
		},
	}
}

var safeCSSValue = regexp.MustCompile(`^[#a-zA-Z0-9 ,.%'"()-]+$`)

// cssVarsStyle renders CSS custom properties as an inline declaration list.
// Values outside a conservative character set are dropped.
func cssVarsStyle(vars map[string]string) template.CSS {
	if len(vars) == 0 {
		return ""
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var b strings.Builder
	for _, k := range keys {
		v := vars[k]
		if !safeCSSValue.MatchString(v) || strings.Contains(v, "url(") || strings.Contains(v, "expression(") {
			continue
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("; ")
	}
	return template.CSS(strings.TrimSpace(b.String()))
}
