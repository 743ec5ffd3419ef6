package postid

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Well-known host aliases. Key: input host. Value: canonical domain.
//
// Keep this intentionally conservative: we only alias hosts that are truly the
// same "source website" from a user perspective.
var canonicalDomainByHost = map[string]string{
	"tiktok.com":     "tiktok.com",
	"www.tiktok.com": "tiktok.com",
	"m.tiktok.com":   "tiktok.com",
	"vm.tiktok.com":  "tiktok.com",
	"vt.tiktok.com":  "tiktok.com",

	"instagram.com":     "instagram.com",
	"www.instagram.com": "instagram.com",
	"m.instagram.com":   "instagram.com",

	"youtube.com":     "youtube.com",
	"www.youtube.com": "youtube.com",
	"m.youtube.com":   "youtube.com",
	"youtu.be":        "youtube.com",
}

// platformByDomain maps canonical domains to the platform name stored on items.
var platformByDomain = map[string]string{
	"tiktok.com":    "tiktok",
	"instagram.com": "instagram",
	"youtube.com":   "youtube",
}

// ResolveCanonicalDomain returns the canonical domain for host.
//
// host should be a hostname without port.
func ResolveCanonicalDomain(host string) string {
	h := normalizeHost(host)
	if h == "" {
		return ""
	}
	if c, ok := canonicalDomainByHost[h]; ok {
		return c
	}
	return h
}

// PlatformForURL returns the platform name for a URL, or "" for hosts we
// don't recognize. Unknown hosts are still ingestable; the extractor's
// reported platform wins in that case.
func PlatformForURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return platformByDomain[ResolveCanonicalDomain(u.Host)]
}

// NormalizePlatform maps a yt-dlp extractor key to a stable platform name.
func NormalizePlatform(extractor string) string {
	e := strings.ToLower(strings.TrimSpace(extractor))
	switch {
	case strings.HasPrefix(e, "tiktok"):
		return "tiktok"
	case strings.HasPrefix(e, "instagram"):
		return "instagram"
	case strings.HasPrefix(e, "youtube"):
		return "youtube"
	case e == "":
		return "unknown"
	default:
		return e
	}
}

// NamespaceUUIDForPlatform returns a deterministic UUIDv5 namespace for a platform.
func NamespaceUUIDForPlatform(platform string) uuid.UUID {
	p := strings.TrimSpace(strings.ToLower(platform))
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(p))
}

// ItemUUID returns a deterministic UUIDv5 for a (platform, postID) pair.
// Re-ingesting the same post always resolves to the same item id.
func ItemUUID(platform string, postID string) uuid.UUID {
	p := strings.TrimSpace(strings.ToLower(platform))
	id := strings.TrimSpace(postID)

	ns := NamespaceUUIDForPlatform(p)
	return uuid.NewSHA1(ns, []byte(id))
}

// Fingerprint returns the deterministic cache key for a URL: the sha256 of
// the normalized URL, hex encoded. Normalization failures fall back to the
// raw input so the fingerprint is still stable.
func Fingerprint(rawURL string) string {
	normalized, _, err := NormalizeSourceURL(rawURL)
	if err != nil {
		normalized = strings.TrimSpace(rawURL)
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// NormalizeSourceURL normalizes a user-provided URL for stable storage and
// deduplication.
//
// It canonicalizes the host (e.g. vm.tiktok.com -> tiktok.com) and strips
// fragments and query parameters that commonly vary (tracking, share tokens).
//
// For known sources:
// - youtube.com: normalizes shorts/watch links to https://youtube.com/shorts/{id}
// - tiktok.com: strips all query params
// - instagram.com: strips all query params
//
// For unknown hosts, it removes fragments but preserves query params.
func NormalizeSourceURL(raw string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", errors.New("missing url")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme == "" {
		u, err = url.Parse("https://" + raw)
		if err != nil {
			return "", "", err
		}
	}

	// Remove fragment for stability.
	u.Fragment = ""
	// Drop userinfo.
	u.User = nil

	origHost := normalizeHost(u.Host)
	canon := ResolveCanonicalDomain(origHost)

	// YouTube shortlinks carry the ID in the path before we rewrite the host.
	youtubeID := ""
	if canon == "youtube.com" {
		if id := extractYouTubeID(u); id != "" {
			youtubeID = id
		}
	}

	if canon != "" {
		u.Host = canon
	}

	// Prefer https for http(s) URLs.
	if u.Scheme == "http" || u.Scheme == "https" {
		u.Scheme = "https"
	}

	u.Path = trimTrailingSlash(u.Path)

	switch canon {
	case "youtube.com":
		if youtubeID != "" {
			u.Path = "/shorts/" + youtubeID
			u.RawQuery = ""
		}
	case "tiktok.com", "instagram.com":
		u.RawQuery = ""
	}

	platform := platformByDomain[canon]
	return u.String(), platform, nil
}

func extractYouTubeID(u *url.URL) string {
	host := normalizeHost(u.Host)
	if host == "youtu.be" {
		return firstPathSegment(u.Path)
	}
	if q := u.Query().Get("v"); q != "" {
		return q
	}
	for _, prefix := range []string{"/shorts/", "/embed/", "/v/", "/live/"} {
		if strings.HasPrefix(u.Path, prefix) {
			if id := firstPathSegment(strings.TrimPrefix(u.Path, prefix)); id != "" {
				return id
			}
		}
	}
	return ""
}

func normalizeHost(hostport string) string {
	h := strings.TrimSpace(strings.ToLower(hostport))
	if h == "" {
		return ""
	}
	// url.URL.Host may include port.
	if strings.Contains(h, ":") {
		if parsed, err := url.Parse("//" + h); err == nil {
			if parsed.Hostname() != "" {
				h = parsed.Hostname()
			}
		}
	}
	h = strings.TrimSuffix(h, ".")
	return h
}

func trimTrailingSlash(p string) string {
	if p == "" {
		return ""
	}
	if p == "/" {
		return "/"
	}
	return strings.TrimRight(p, "/")
}

func firstPathSegment(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return ""
	}
	seg, _, _ := strings.Cut(p, "/")
	return strings.TrimSpace(seg)
}
