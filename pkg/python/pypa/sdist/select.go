// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package sdist

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pybuild/pkg/fsutil"
	"github.com/datawire/pybuild/pkg/glob"
	"github.com/datawire/pybuild/pkg/vcs"
)

// DefaultExcludes are always excluded, ahead of any configured exclude patterns.
var DefaultExcludes = []string{"**/__pycache__", "**/*.pyc"}

// A FileSelector picks the candidate files for an sdist, as slash-separated paths relative to
// the project directory.  Include and exclude patterns are applied afterward.
type FileSelector interface {
	SelectFiles(ctx context.Context, b *Builder) ([]string, error)
}

// ModuleFiles selects the module's files, the external data files, and the config file along
// with the files it references.
type ModuleFiles struct{}

func (ModuleFiles) SelectFiles(_ context.Context, b *Builder) ([]string, error) {
	modFiles, err := b.Module.IterFiles()
	if err != nil {
		return nil, err
	}
	var dataFiles []string
	if b.DataDirectory != "" {
		dataFiles, err = fsutil.ListFiles(b.DataDirectory, func(name string) bool {
			return name == "__pycache__" || strings.HasSuffix(name, ".pyc")
		})
		if err != nil {
			return nil, err
		}
	}
	ret := make([]string, 0, len(modFiles)+len(dataFiles)+len(b.ExtraFiles))
	for _, abs := range append(modFiles, dataFiles...) {
		rel, err := b.relative(abs)
		if err != nil {
			return nil, err
		}
		ret = append(ret, rel)
	}
	return append(ret, b.ExtraFiles...), nil
}

// VCSFiles selects every file tracked by Git, except for build output and compiled bytecode.
// Untracked or deleted files that would otherwise be selected are an error.  If the project is
// not in a Git checkout, it falls back to ModuleFiles.
type VCSFiles struct{}

func vcsIncludePath(name string) bool {
	return !(strings.HasPrefix(name, "dist/") ||
		strings.Contains("/"+name, "/__pycache__/") ||
		strings.HasSuffix(name, ".pyc"))
}

func (VCSFiles) SelectFiles(ctx context.Context, b *Builder) ([]string, error) {
	repo, err := vcs.Open(b.ProjectDir)
	if err != nil {
		if errors.Is(err, vcs.ErrNoRepository) {
			dlog.Warnf(ctx, "Not in a recognised version control directory; using only module and referenced files")
			return ModuleFiles{}.SelectFiles(ctx, b)
		}
		return nil, err
	}

	untrackedDeleted, err := repo.UntrackedDeletedFiles()
	if err != nil {
		return nil, err
	}
	for _, name := range untrackedDeleted {
		if vcsIncludePath(name) {
			return nil, &vcs.Error{
				Dir: b.ProjectDir,
				Err: errors.New("untracked or deleted files in the source directory: " +
					"commit, undo or ignore these files in your VCS"),
			}
		}
	}

	tracked, err := repo.TrackedFiles()
	if err != nil {
		return nil, err
	}
	ret := make([]string, 0, len(tracked))
	for _, name := range tracked {
		name = path.Clean(name)
		if vcsIncludePath(name) {
			ret = append(ret, name)
		}
	}
	dlog.Infof(ctx, "Found %d files tracked in git", len(ret))
	return ret, nil
}

type rule struct {
	pattern string
	include bool
}

// matches reports whether the rule's pattern matches name or any directory containing it.
func (r rule) matches(name string) (bool, error) {
	for cur := name; cur != "." && cur != "/"; cur = path.Dir(cur) {
		ok, err := glob.Match(r.pattern, cur)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func makeRules(includes, excludes []string) []rule {
	rules := make([]rule, 0, len(includes)+len(DefaultExcludes)+len(excludes))
	for _, pat := range includes {
		rules = append(rules, rule{pattern: pat, include: true})
	}
	for _, pat := range append(append([]string(nil), DefaultExcludes...), excludes...) {
		if strings.HasPrefix(pat, "!") {
			rules = append(rules, rule{pattern: pat[1:], include: true})
		} else {
			rules = append(rules, rule{pattern: pat, include: false})
		}
	}
	return rules
}

// included applies the rules to name: the last matching rule decides, and a name that no rule
// matches is included.
func included(rules []rule, name string) (bool, error) {
	ret := true
	for _, r := range rules {
		ok, err := r.matches(name)
		if err != nil {
			return false, err
		}
		if ok {
			ret = r.include
		}
	}
	return ret, nil
}

// expandIncludes returns every file in projDir matched by one of the include patterns;
// directories that match contribute every file below them.
func expandIncludes(projDir string, includes []string) ([]string, error) {
	fsys := os.DirFS(projDir)
	var ret []string
	for _, pat := range includes {
		files, dirs, err := glob.Expand(fsys, pat)
		if err != nil {
			return nil, err
		}
		ret = append(ret, files...)
		for _, dir := range dirs {
			err := fs.WalkDir(fsys, dir, func(name string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() {
					ret = append(ret, name)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}
	return ret, nil
}

// SelectFiles returns the sorted list of files that go in to the sdist, as slash-separated
// paths relative to ProjectDir.
func (b *Builder) SelectFiles(ctx context.Context) ([]string, error) {
	selector := b.Selector
	if selector == nil {
		selector = ModuleFiles{}
	}
	candidates, err := selector.SelectFiles(ctx, b)
	if err != nil {
		return nil, err
	}
	extra, err := expandIncludes(b.ProjectDir, b.IncludePatterns)
	if err != nil {
		return nil, err
	}

	rules := makeRules(b.IncludePatterns, b.ExcludePatterns)
	set := make(map[string]struct{}, len(candidates)+len(extra))
	for _, name := range append(candidates, extra...) {
		name = path.Clean(name)
		ok, err := included(rules, name)
		if err != nil {
			return nil, err
		}
		if ok {
			set[name] = struct{}{}
		}
	}

	crucial := append([]string(nil), b.ExtraFiles...)
	modFile, err := b.relative(b.Module.File())
	if err != nil {
		return nil, err
	}
	crucial = append(crucial, modFile)
	var missing []string
	for _, name := range crucial {
		if _, ok := set[path.Clean(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, errors.New("crucial files were excluded from the sdist: " + strings.Join(missing, ", "))
	}

	ret := make([]string, 0, len(set))
	for name := range set {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret, nil
}

// relative converts an absolute path below ProjectDir to a slash-separated relative one.
func (b *Builder) relative(abs string) (string, error) {
	rel, err := filepath.Rel(b.ProjectDir, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
