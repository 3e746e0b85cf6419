// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package vcs lists the files that version control knows about, for building sdists from a
// checkout.  Only Git is supported.
package vcs

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/pkg/errors"
)

// Error is a problem with the version control state of Dir.
type Error struct {
	Dir string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v (directory: %s)", e.Err, e.Dir)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNoRepository means that the directory is not inside of a Git worktree.
var ErrNoRepository = errors.New("not in a git repository")

// Repo is a directory inside of a Git worktree.
type Repo struct {
	repo *git.Repository
	dir  string
	// prefix is the slash-separated path of dir relative to the top of the worktree, or "".
	prefix string
}

// Open finds the Git repository containing dir.
func Open(dir string) (*Repo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, &Error{Dir: dir, Err: err}
	}
	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, &Error{Dir: dir, Err: ErrNoRepository}
	}
	if err != nil {
		return nil, &Error{Dir: dir, Err: errors.Wrap(err, "opening git repository")}
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, &Error{Dir: dir, Err: errors.Wrap(err, "accessing worktree")}
	}
	top, err := filepath.EvalSymlinks(wt.Filesystem.Root())
	if err != nil {
		return nil, &Error{Dir: dir, Err: err}
	}
	if realAbs, err := filepath.EvalSymlinks(abs); err == nil {
		abs = realAbs
	}
	rel, err := filepath.Rel(top, abs)
	if err != nil {
		return nil, &Error{Dir: dir, Err: err}
	}
	return FromRepository(repo, dir, filepath.ToSlash(rel)), nil
}

// FromRepository wraps an already-open repository; subdir is the slash-separated path of dir
// within the worktree.
func FromRepository(repo *git.Repository, dir, subdir string) *Repo {
	subdir = path.Clean(subdir)
	if subdir == "." {
		subdir = ""
	}
	return &Repo{
		repo:   repo,
		dir:    dir,
		prefix: subdir,
	}
}

// relative returns name relative to the repo's directory, and whether it is inside it at all.
func (r *Repo) relative(name string) (string, bool) {
	if r.prefix == "" {
		return name, true
	}
	if !strings.HasPrefix(name, r.prefix+"/") {
		return "", false
	}
	return strings.TrimPrefix(name, r.prefix+"/"), true
}

// TrackedFiles returns the sorted slash-separated names of the files in the index, relative to
// the directory.
func (r *Repo) TrackedFiles() ([]string, error) {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return nil, &Error{Dir: r.dir, Err: errors.Wrap(err, "reading index")}
	}
	var ret []string
	for _, entry := range idx.Entries {
		if name, ok := r.relative(entry.Name); ok {
			ret = append(ret, name)
		}
	}
	sort.Strings(ret)
	return ret, nil
}

// UntrackedDeletedFiles returns the sorted names of files that are untracked (and not ignored),
// or that are tracked but have been deleted from the worktree.
func (r *Repo) UntrackedDeletedFiles() ([]string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, &Error{Dir: r.dir, Err: errors.Wrap(err, "accessing worktree")}
	}
	status, err := wt.Status()
	if err != nil {
		return nil, &Error{Dir: r.dir, Err: errors.Wrap(err, "getting worktree status")}
	}
	var ret []string
	for fullname, fileStatus := range status {
		if fileStatus.Worktree != git.Untracked && fileStatus.Worktree != git.Deleted {
			continue
		}
		if name, ok := r.relative(fullname); ok {
			ret = append(ret, name)
		}
	}
	sort.Strings(ret)
	return ret, nil
}
