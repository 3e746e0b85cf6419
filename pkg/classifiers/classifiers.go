// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package classifiers maintains a local cache of the trove classifiers that PyPI accepts.
package classifiers

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pybuild/pkg/fsutil"
)

// DefaultURL serves the full classifier list, one per line.
const DefaultURL = "https://pypi.org/pypi?%3Aaction=list_classifiers"

// NoNetworkEnvVar disables fetching when set to a non-empty value.
const NoNetworkEnvVar = "FLIT_NO_NETWORK"

const cacheFileName = "classifiers.lst"

// Cache is the on-disk classifier list.
type Cache struct {
	// Dir holds the cache file.
	Dir    string
	URL    string
	Client *http.Client
	// NoNetwork disables fetching; NewCache sets it from $FLIT_NO_NETWORK.
	NoNetwork bool
}

// NewCache returns a Cache in the per-user cache directory: $XDG_CACHE_HOME/flit (or
// ~/.cache/flit) on Unix, ~/Library/Caches/flit on macOS.
func NewCache() (*Cache, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("classifiers.NewCache: %w", err)
	}
	return &Cache{
		Dir:       filepath.Join(dir, "flit"),
		URL:       DefaultURL,
		Client:    http.DefaultClient,
		NoNetwork: os.Getenv(NoNetworkEnvVar) != "",
	}, nil
}

func parseList(r io.Reader) (map[string]bool, error) {
	ret := make(map[string]bool)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			ret[line] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (c *Cache) filename() string {
	return filepath.Join(c.Dir, cacheFileName)
}

func (c *Cache) read() (map[string]bool, error) {
	fh, err := os.Open(c.filename())
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return parseList(fh)
}

func (c *Cache) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// write replaces the cache file, such that concurrent readers never see a partial list.
func (c *Cache) write(content []byte) error {
	staged, err := fsutil.NewStagedFile(c.Dir, cacheFileName+".*.tmp")
	if err != nil {
		return err
	}
	defer staged.Discard()
	if _, err := staged.Write(content); err != nil {
		return err
	}
	return staged.Commit(cacheFileName, 0o644)
}

func coversAll(known map[string]bool, wanted []string) bool {
	for _, classifier := range wanted {
		if !known[classifier] {
			return false
		}
	}
	return true
}

// Known returns the known classifiers.  The cache is refreshed from the network if it is
// missing or lacks any of wanted.  ok is false if the classifiers can't be checked; the reason
// has already been logged as a warning.
func (c *Cache) Known(ctx context.Context, wanted []string) (known map[string]bool, ok bool) {
	known, err := c.read()
	if err != nil && !os.IsNotExist(err) {
		dlog.Warnf(ctx, "reading classifier cache: %v", err)
	}
	if known != nil && coversAll(known, wanted) {
		return known, true
	}

	if c.NoNetwork {
		dlog.Warnf(ctx, "not checking classifiers, because %s is set", NoNetworkEnvVar)
		return nil, false
	}

	dlog.Infof(ctx, "fetching list of valid trove classifiers")
	content, err := c.fetch(ctx)
	if err != nil {
		dlog.Warnf(ctx, "couldn't get list of valid classifiers to check against: %v", err)
		return nil, false
	}
	if known, err = parseList(bytes.NewReader(content)); err != nil {
		dlog.Warnf(ctx, "couldn't parse list of valid classifiers: %v", err)
		return nil, false
	}
	if err := c.write(content); err != nil {
		dlog.Warnf(ctx, "couldn't write classifier cache: %v", err)
	}
	return known, true
}
