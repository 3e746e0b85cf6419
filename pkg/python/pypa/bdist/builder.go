// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package bdist

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pybuild/pkg/fsutil"
	"github.com/datawire/pybuild/pkg/pymodule"
	"github.com/datawire/pybuild/pkg/python"
	"github.com/datawire/pybuild/pkg/python/coremetadata"
	"github.com/datawire/pybuild/pkg/python/pep425"
	"github.com/datawire/pybuild/pkg/python/pep440"
	"github.com/datawire/pybuild/pkg/python/pep503"
	"github.com/datawire/pybuild/pkg/python/pypa/entry_points"
	"github.com/datawire/pybuild/pkg/reproducible"
)

// WheelOptions describes a single wheel build.
type WheelOptions struct {
	Module   *pymodule.Module
	Metadata *coremetadata.Metadata
	// EntryPoints maps group → name → "module:object".
	EntryPoints map[string]map[string]string
	// ProjectDir is searched for COPYING* and LICENSE* files, unless Metadata.LicenseFiles
	// names them explicitly.
	ProjectDir string
	// DataDirectory, if set, is shipped as the wheel's "data" scheme.
	DataDirectory string
	// TargetDir is the directory that the wheel is written to.
	TargetDir string
	// Editable wheels contain a .pth file pointing at Module.SourceDir instead of the module.
	Editable bool
	// Generator is written to the WHEEL file.  Defaults to "pybuild".
	Generator string
}

// DistName is the "{name}-{version}" prefix shared by the wheel file name, its .dist-info
// directory and its .data directory.
func DistName(name, version string) string {
	return pep503.NormalizeWheelName(name) + "-" + strings.ReplaceAll(version, "-", "_")
}

func wheelFilename(md *coremetadata.Metadata) string {
	tag := pep425.PurePython(md.SupportsPy2())
	if ver, err := pep440.ParseVersion(md.Version); err == nil {
		if filename, err := GenerateFilename(FileNameData{
			Distribution:     md.Name,
			Version:          *ver,
			CompatibilityTag: tag,
		}); err == nil {
			return filename
		}
	}
	// FLIT_ALLOW_INVALID versions don't parse.
	return DistName(md.Name, md.Version) + "-" + tag.String() + ".whl"
}

type wheelBuilder struct {
	opts     WheelOptions
	zip      *zip.Writer
	records  []Record
	distInfo string

	// sourceTime, if non-zero, overrides the mtime of files copied from the project.
	sourceTime time.Time
	// genTime is the mtime of generated files.
	genTime time.Time
}

// BuildWheel writes a pure-Python wheel to opts.TargetDir, and returns its path.  The wheel is
// staged under a temporary name, and only renamed to its final name once it is complete.
//
// If SOURCE_DATE_EPOCH is set, the result is a function of the file contents and metadata only.
func BuildWheel(ctx context.Context, opts WheelOptions) (string, error) {
	if opts.Module == nil || opts.Metadata == nil {
		return "", fmt.Errorf("bdist.BuildWheel: Module and Metadata are required")
	}
	if opts.Generator == "" {
		opts.Generator = "pybuild"
	}

	builder := &wheelBuilder{
		opts:     opts,
		distInfo: DistName(opts.Metadata.Name, opts.Metadata.Version) + ".dist-info",
		genTime:  reproducible.DefaultZIPTime,
	}
	if epoch, ok := reproducible.ZIPTime(ctx); ok {
		builder.sourceTime = epoch
		builder.genTime = epoch
	}

	staged, err := fsutil.NewStagedFile(opts.TargetDir, "*.whl")
	if err != nil {
		return "", fmt.Errorf("bdist.BuildWheel: %w", err)
	}
	defer staged.Discard()

	builder.zip = zip.NewWriter(staged)
	if err := builder.build(ctx); err != nil {
		return "", fmt.Errorf("bdist.BuildWheel: %w", err)
	}
	if err := builder.zip.Close(); err != nil {
		return "", fmt.Errorf("bdist.BuildWheel: %w", err)
	}

	filename := wheelFilename(opts.Metadata)
	if err := staged.Commit(filename, 0o644); err != nil {
		return "", fmt.Errorf("bdist.BuildWheel: %w", err)
	}
	ret := filepath.Join(opts.TargetDir, filename)
	dlog.Infof(ctx, "Built wheel: %s", ret)
	return ret, nil
}

func (wb *wheelBuilder) build(ctx context.Context) error {
	if wb.opts.Editable {
		if err := wb.addPth(ctx); err != nil {
			return err
		}
	} else {
		if err := wb.copyModule(ctx); err != nil {
			return err
		}
	}
	if err := wb.addDataDirectory(ctx); err != nil {
		return err
	}
	if err := wb.writeMetadata(ctx); err != nil {
		return err
	}
	return wb.writeRecord(ctx)
}

func (wb *wheelBuilder) copyModule(ctx context.Context) error {
	mod := wb.opts.Module
	dlog.Infof(ctx, "Copying package file(s) from %s", mod.Path)
	files, err := mod.IterFiles()
	if err != nil {
		return err
	}
	for _, fullPath := range files {
		relPath, err := filepath.Rel(mod.SourceDir, fullPath)
		if err != nil {
			return err
		}
		if err := wb.addFile(fullPath, filepath.ToSlash(relPath)); err != nil {
			return err
		}
	}
	return nil
}

func (wb *wheelBuilder) addPth(ctx context.Context) error {
	sourceDir, err := filepath.Abs(wb.opts.Module.SourceDir)
	if err != nil {
		return err
	}
	if resolved, err := filepath.EvalSymlinks(sourceDir); err == nil {
		sourceDir = resolved
	}
	pthName := wb.opts.Module.Name + ".pth"
	dlog.Infof(ctx, "Adding .pth file %s for %s", pthName, sourceDir)
	return wb.writeString(pthName, sourceDir)
}

func (wb *wheelBuilder) addDataDirectory(ctx context.Context) error {
	dataDir := wb.opts.DataDirectory
	if dataDir == "" {
		return nil
	}
	files, err := fsutil.ListFiles(dataDir, nil)
	if err != nil {
		return err
	}
	dirInWheel := DistName(wb.opts.Metadata.Name, wb.opts.Metadata.Version) + ".data/data"
	dlog.Debugf(ctx, "Adding %d external data file(s) from %s", len(files), dataDir)
	for _, fullPath := range files {
		relPath, err := filepath.Rel(dataDir, fullPath)
		if err != nil {
			return err
		}
		if err := wb.addFile(fullPath, path.Join(dirInWheel, filepath.ToSlash(relPath))); err != nil {
			return err
		}
	}
	return nil
}

// licenseFiles returns (source path, path inside .dist-info) pairs.
func (wb *wheelBuilder) licenseFiles() ([][2]string, error) {
	var ret [][2]string
	if len(wb.opts.Metadata.LicenseFiles) > 0 {
		for _, relPath := range wb.opts.Metadata.LicenseFiles {
			ret = append(ret, [2]string{
				filepath.Join(wb.opts.ProjectDir, filepath.FromSlash(relPath)),
				path.Join("licenses", relPath),
			})
		}
		return ret, nil
	}
	if wb.opts.ProjectDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(wb.opts.ProjectDir)
	if err != nil {
		return nil, err
	}
	for _, base := range []string{"COPYING", "LICENSE"} {
		var names []string
		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), base) && entry.Type().IsRegular() {
				names = append(names, entry.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			ret = append(ret, [2]string{filepath.Join(wb.opts.ProjectDir, name), name})
		}
	}
	return ret, nil
}

func (wb *wheelBuilder) writeMetadata(ctx context.Context) error {
	dlog.Infof(ctx, "Writing metadata files")

	if len(wb.opts.EntryPoints) > 0 {
		var buf strings.Builder
		if err := entry_points.Write(&buf, wb.opts.EntryPoints); err != nil {
			return err
		}
		if err := wb.writeString(path.Join(wb.distInfo, "entry_points.txt"), buf.String()); err != nil {
			return err
		}
	}

	licenses, err := wb.licenseFiles()
	if err != nil {
		return err
	}
	for _, pair := range licenses {
		if err := wb.addFile(pair[0], path.Join(wb.distInfo, pair[1])); err != nil {
			return err
		}
	}

	var wheelFile strings.Builder
	fmt.Fprintf(&wheelFile, "Wheel-Version: 1.0\nGenerator: %s\nRoot-Is-Purelib: true\n", wb.opts.Generator)
	if wb.opts.Metadata.SupportsPy2() {
		wheelFile.WriteString("Tag: py2-none-any\n")
	}
	wheelFile.WriteString("Tag: py3-none-any\n")
	if err := wb.writeString(path.Join(wb.distInfo, "WHEEL"), wheelFile.String()); err != nil {
		return err
	}

	metadata, err := wb.opts.Metadata.Bytes()
	if err != nil {
		return err
	}
	return wb.writeString(path.Join(wb.distInfo, "METADATA"), string(metadata))
}

func (wb *wheelBuilder) writeRecord(ctx context.Context) error {
	dlog.Infof(ctx, "Writing the record of files")
	recordPath := path.Join(wb.distInfo, "RECORD")
	content, err := marshalRecords(wb.records, recordPath)
	if err != nil {
		return err
	}
	writer, err := wb.zip.CreateHeader(wb.generatedHeader(recordPath))
	if err != nil {
		return err
	}
	_, err = writer.Write(content)
	return err
}

func (wb *wheelBuilder) generatedHeader(name string) *zip.FileHeader {
	return &zip.FileHeader{
		Name:           name,
		Method:         zip.Deflate,
		Modified:       wb.genTime,
		CreatorVersion: python.ZIPCreatorUNIX,
		ExternalAttrs:  python.ExternalAttributesFor(python.ModeFmtRegular | 0o644).Raw(),
	}
}

// addFile copies a file from disk, normalizing its permissions.
func (wb *wheelBuilder) addFile(fullPath, relPath string) error {
	info, err := os.Stat(fullPath)
	if err != nil {
		return err
	}
	mtime := wb.sourceTime
	if mtime.IsZero() {
		mtime = info.ModTime()
		if mtime.Before(reproducible.ZIPEpoch) {
			mtime = reproducible.ZIPEpoch
		}
	}
	mode := python.ModeFromGo(info.Mode()).NormalizePermissions()
	header := &zip.FileHeader{
		Name:           relPath,
		Method:         zip.Deflate,
		Modified:       mtime,
		CreatorVersion: python.ZIPCreatorUNIX,
		ExternalAttrs:  python.ExternalAttributesFor(mode).Raw(),
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return err
	}
	defer file.Close()
	return wb.writeEntry(header, file)
}

func (wb *wheelBuilder) writeString(relPath, content string) error {
	return wb.writeEntry(wb.generatedHeader(relPath), strings.NewReader(content))
}

func (wb *wheelBuilder) writeEntry(header *zip.FileHeader, content io.Reader) error {
	writer, err := wb.zip.CreateHeader(header)
	if err != nil {
		return err
	}
	hash, size, err := python.RecordDigest(python.DefaultRecordHash, io.TeeReader(content, writer))
	if err != nil {
		return fmt.Errorf("%s: %w", header.Name, err)
	}
	wb.records = append(wb.records, Record{
		Path: header.Name,
		Hash: hash,
		Size: size,
	})
	return nil
}
