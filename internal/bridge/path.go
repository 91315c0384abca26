// Package bridge implements the columnar query bridge (C3): resolving
// a DataProduct's registered source to a physical Parquet path via its
// Location, and reading that Parquet data with Arrow, the closest real
// columnar-file library anywhere in the retrieval pack.
package bridge

import (
	"fmt"
	"strings"

	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

// ResolveSourcePath joins a Location's root URI with a
// DataProductSource's relative source URI, supporting local
// filesystem, object-store, and HTTP roots the same way. "file://" is
// stripped to a bare local path; "s3://" and "https://" roots are
// passed through unchanged since they are already valid prefixes for
// a joined URL.
func ResolveSourcePath(location model.Location, source model.DataProductSource) string {
	root := location.RootURI
	if strings.HasPrefix(root, "file://") {
		root = strings.TrimPrefix(root, "file://")
	}
	root = strings.TrimRight(root, "/")
	return root + "/" + strings.TrimLeft(source.SourceURI, "/")
}

// IsLocalPath reports whether a resolved path refers to the local
// filesystem rather than an object-store or HTTP endpoint. Only local
// paths can be opened directly by Arrow's Parquet reader; remote roots
// require a dedicated object-store client this domain does not carry
// (see DESIGN.md).
func IsLocalPath(resolved string) bool {
	return !strings.Contains(resolved, "://")
}

// errRemoteSourceUnsupported builds the error returned when a resolved source path
// refers to a non-local root; reading such a path requires an
// object-store client this bridge does not implement.
func errRemoteSourceUnsupported(resolved string) error {
	return fmt.Errorf("bridge: remote source path %q is not local; only file:// roots can be read directly", resolved)
}
