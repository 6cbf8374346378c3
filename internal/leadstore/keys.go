package leadstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/lead"
)

const (
	leadsRoot   = "leads/"
	licenseRoot = "drivers-licenses/"
)

// PartitionPrefix is the key prefix for one month of leads.
func PartitionPrefix(year, month int) string {
	return fmt.Sprintf("%s%04d/%02d/", leadsRoot, year, month)
}

// LeadKey is leads/{yyyy}/{mm}/{epochMillis}-{id}.json. The millis prefix keeps
// keys roughly chronological within a partition.
func LeadKey(l lead.Lead) string {
	t := l.CreatedAt.UTC()
	return fmt.Sprintf("%s%d-%s.json", PartitionPrefix(t.Year(), int(t.Month())), t.UnixMilli(), l.ID)
}

var licenseExtensions = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/webp":      "webp",
	"image/heic":      "heic",
	"image/heif":      "heif",
	"application/pdf": "pdf",
}

// LicenseKey returns drivers-licenses/{id}.{ext} for an accepted content type.
func LicenseKey(id, contentType string) (string, bool) {
	ext, ok := licenseExtensions[normalizeContentType(contentType)]
	if !ok {
		return "", false
	}
	return licenseRoot + id + "." + ext, true
}

func normalizeContentType(ct string) string {
	ct, _, _ = strings.Cut(ct, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}

// ShiftMonth moves (year, month) by delta months.
func ShiftMonth(year, month, delta int) (int, int) {
	t := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, delta, 0)
	return t.Year(), int(t.Month())
}

// keyMatchesID matches the "-{id}.json" suffix of a lead key.
func keyMatchesID(key, id string) bool {
	return strings.HasSuffix(key, "-"+id+".json")
}
