// Package integrations holds the static integration catalog and the
// connection lifecycle manager that tracks, per user, whether each
// integration is connected.
package integrations

import (
	"strings"

	"github.com/haasonsaas/conductor/pkg/models"
)

var defaultCatalog = []models.Integration{
	{Name: "Gmail", Slug: "gmail", AppID: "gmail", Description: "Send and manage emails"},
	{Name: "Google Calendar", Slug: "google-calendar", AppID: "googlecalendar", Description: "Manage calendar events"},
	{Name: "Google Docs", Slug: "google-docs", AppID: "googledocs", Description: "Create and edit documents"},
	{Name: "Google Sheets", Slug: "google-sheets", AppID: "googlesheets", Description: "Create and edit spreadsheets"},
	{Name: "Google Drive", Slug: "google-drive", AppID: "googledrive", Description: "Manage Google Drive files and folders"},
	{Name: "Notion", Slug: "notion", AppID: "notion", Description: "Manage Notion pages and databases"},
	{Name: "Slack", Slug: "slack", AppID: "slack", Description: "Send messages and manage channels"},
	{Name: "X (Twitter)", Slug: "twitter", AppID: "twitter", Description: "Post tweets and manage account"},
	{Name: "LinkedIn", Slug: "linkedin", AppID: "linkedin", Description: "Manage LinkedIn posts and connections"},
	{Name: "Facebook", Slug: "facebook", AppID: "facebook", Description: "Manage Facebook posts and pages"},
}

// Catalog is an immutable list of integrations.
type Catalog struct {
	entries []models.Integration
}

// NewCatalog returns the built-in catalog with auth configuration ids
// resolved by authConfigID, which receives the integration slug. A nil
// lookup leaves every integration unconfigured.
func NewCatalog(authConfigID func(slug string) string) *Catalog {
	entries := make([]models.Integration, len(defaultCatalog))
	copy(entries, defaultCatalog)
	if authConfigID != nil {
		for i := range entries {
			entries[i].AuthConfigID = authConfigID(entries[i].Slug)
		}
	}
	return &Catalog{entries: entries}
}

// All returns a copy of the catalog in display order.
func (c *Catalog) All() []models.Integration {
	out := make([]models.Integration, len(c.entries))
	copy(out, c.entries)
	return out
}

// Lookup finds an integration by display name or slug, case-insensitively.
func (c *Catalog) Lookup(name string) (models.Integration, bool) {
	name = strings.TrimSpace(name)
	for _, entry := range c.entries {
		if strings.EqualFold(entry.Name, name) || strings.EqualFold(entry.Slug, name) {
			return entry, true
		}
	}
	return models.Integration{}, false
}

// AuthToolName is the name of the tool that starts authorization for an
// integration, e.g. "authenticateGoogleCalendar".
func AuthToolName(integration models.Integration) string {
	var b strings.Builder
	b.WriteString("authenticate")
	for _, part := range strings.FieldsFunc(integration.Name, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	}) {
		if integration.Slug == "twitter" && part == "X" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

// matches reports whether a backend connection belongs to integration.
func matches(integration models.Integration, toolkitSlug, authConfigID string) bool {
	slug := strings.ToLower(strings.TrimSpace(toolkitSlug))
	if slug != "" && (slug == strings.ToLower(integration.AppID) || slug == integration.Slug) {
		return true
	}
	return integration.AuthConfigID != "" && authConfigID == integration.AuthConfigID
}
