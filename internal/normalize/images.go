package normalize

import (
	"net/url"
	"strings"
)

// ImageResolver turns stored image references into loadable URLs.
//
// Precedence over the candidates of one entity: an absolute URL, then a
// storage path resolved against BaseURL, then a path already rooted at the
// local asset prefix, then "".
type ImageResolver struct {
	// BaseURL is the storage host. Empty disables storage resolution.
	BaseURL string
	// Bucket is the public storage bucket holding uploads.
	Bucket string
	// LocalPrefix marks paths bundled with the client ("assets/").
	LocalPrefix string
}

type refKind int

const (
	refNone refKind = iota
	refLocal
	refStorage
	refAbsolute
)

// Resolve picks the best reference among refs and returns it as a URL.
func (r ImageResolver) Resolve(refs ...string) string {
	var storage, local string
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		switch r.kind(ref) {
		case refAbsolute:
			return ref
		case refStorage:
			if storage == "" {
				storage = ref
			}
		case refLocal:
			if local == "" {
				local = ref
			}
		}
	}
	if storage != "" && r.BaseURL != "" {
		return r.storageURL(storage)
	}
	return local
}

func (r ImageResolver) kind(ref string) refKind {
	switch {
	case ref == "":
		return refNone
	case isAbsolute(ref):
		return refAbsolute
	case strings.HasPrefix(ref, "/"), strings.HasPrefix(ref, r.localPrefix()):
		return refLocal
	default:
		return refStorage
	}
}

func (r ImageResolver) localPrefix() string {
	if r.LocalPrefix == "" {
		return "assets/"
	}
	return r.LocalPrefix
}

func (r ImageResolver) storageURL(path string) string {
	bucket := r.Bucket
	if bucket == "" {
		bucket = "assets"
	}
	return strings.TrimRight(r.BaseURL, "/") + "/storage/v1/object/public/" + bucket + "/" + strings.TrimLeft(path, "/")
}

// IsAbsolute reports whether ref is an absolute http(s) or data URL.
func IsAbsolute(ref string) bool {
	return isAbsolute(strings.TrimSpace(ref))
}

func isAbsolute(ref string) bool {
	if strings.HasPrefix(ref, "data:") {
		return true
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
