package supervisor

import (
	"bytes"
	"context"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/evergreen-ci/grid"
	"github.com/evergreen-ci/grid/apimodels"
	"github.com/evergreen-ci/pail"
	"github.com/pkg/errors"
)

// LibraryStore keeps uploaded service libraries below
// <base>/libraries/<service_id>/<service_version>/.
type LibraryStore struct {
	root   string
	bucket pail.Bucket
}

// NewLibraryStore opens the library directory below basePath, creating it
// if needed.
func NewLibraryStore(basePath string) (*LibraryStore, error) {
	root := filepath.Join(basePath, grid.LibrariesDirectory)
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating library directory '%s'", root)
	}

	bucket, err := pail.NewLocalBucket(pail.LocalOptions{Path: root})
	if err != nil {
		return nil, errors.Wrapf(err, "opening library directory '%s'", root)
	}

	return &LibraryStore{root: root, bucket: bucket}, nil
}

func libraryKey(service apimodels.ServiceDescriptor) string {
	return path.Join(
		strconv.FormatUint(uint64(service.ServiceID), 10),
		strconv.FormatUint(uint64(service.ServiceVersion), 10),
		grid.ServiceLibraryName,
	)
}

// Path returns where the library of the service is stored.
func (s *LibraryStore) Path(service apimodels.ServiceDescriptor) string {
	return filepath.Join(s.root, filepath.FromSlash(libraryKey(service)))
}

// Put stores data as the library of the service, replacing any previous
// upload, and returns its path.
func (s *LibraryStore) Put(ctx context.Context, service apimodels.ServiceDescriptor, data []byte) (string, error) {
	dest := s.Path(service)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", errors.Wrapf(err, "creating directory for service %s", service)
	}

	if err := s.bucket.Put(ctx, libraryKey(service), bytes.NewReader(data)); err != nil {
		return "", errors.Wrapf(err, "writing library for service %s", service)
	}

	// Libraries that are executables are run directly by the worker.
	if err := os.Chmod(dest, 0755); err != nil {
		return "", errors.Wrapf(err, "making library for service %s executable", service)
	}

	return dest, nil
}
